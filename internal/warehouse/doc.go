// Package warehouse implements the data-sink side of the agent.
//
// A warehouse plugin implements Handler and optionally Starter and Stopper.
// The Warehouse wrapper runs Loop right after Start and then on a fixed
// interval; Loop errors are logged and the next tick tries again. Group
// owns the set of configured warehouses for the lifetime of the process.
package warehouse
