// Package credentials loads the API key pool agents draw their keys from.
//
// A keys file is YAML with an api_base and an api_keys map. Keys keep the
// order they have in the file. The pool is split between cooperating users
// so several people can share one file without reusing a key:
//
//	api_base: https://api.openai.com/v1
//	api_keys:
//	  0: sk-...
//	  1: sk-...
//
// The file may also be stored encrypted (scrypt + AES-256-GCM), see Encrypt.
package credentials
