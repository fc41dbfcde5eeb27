// Package participant implements the negotiating agents.
//
// An agent owns a conversation memory, asks its LLM client for a position
// through the shared retry policy and parses the reply. Scalar agents jump
// straight to the position they name. Planar agents treat it as a target and
// reach it through a PID force controller (see Motion).
//
// Agents belong to a single simulation instance. The engine never calls two
// methods of the same agent concurrently, so agents carry no locks.
package participant
