// Package kv describes the minimal command interface the backends
// need from a key-value store and provides the plumbing shared by
// its drivers.
//
// The store is flat: every key holds exactly one kind of value
// (a string, a set, a sorted set or a list). Higher layers build
// their data model out of these primitives by naming keys carefully
// (see package keys) rather than relying on buckets or transactions.
//
//   - storage:notes:u1::timestamp        string  "101"
//   - storage:notes:u1::records          set     {n1, n2}
//   - storage:notes:u1::index            zset    {n1: 100, n2: 101}
//   - storage:notes:u1::record:n1        string  {"id":"n1",...}
//   - permission:ace:bucket/a:read       set     {alice, bob}
//
// Every individual command is atomic. Two commands are never atomic
// together except when they are submitted as one batch to Exec, which
// drivers apply in a single round trip (MULTI/EXEC for redis, a single
// write transaction for the local engines). BumpMax is the one
// read-modify-write primitive and is atomic on its own.
//
// Drivers report connection failures, timeouts and closed stores as
// errors matching ErrUnavailable. They never retry.
package kv
