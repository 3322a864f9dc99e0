// Package steamapi is the gateway to the platform Web API.
//
// Every request goes through one Gateway so that a single token bucket
// spaces all calls. Each call ends in one of five outcomes (see Outcome):
// a body, NotFound, Unauthorized, RateLimited or Transient. Only the first
// three are definitive; callers defer the work on the other two.
package steamapi
