// Package entity implements the data-source side of the agent.
//
// An Entity wraps a plugin Handler and owns an ordered set of Sensors and
// Commands registered during Initialize. The lifecycle is:
//
//	Created → Initializing → Active
//	              ↘ Failed (Initialize error or panic, terminal)
//
// Update failures never change the state; the scheduler retries on the next
// poll. Entities that consume another entity's values call Ensure on it,
// which initializes and updates the dependency on demand.
//
// Data identity is entityID + "." + key, where entityID is "Type" or
// "Type@tag".
package entity
