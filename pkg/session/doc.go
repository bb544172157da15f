/*
Package session implements per-session write serialization.

Every write to a session (log append, entity summon, scene update) runs inside
Manager.WithLock. Locks are created on demand, reference counted and dropped
once no caller waits on them. An optional ports.DistributedLocker extends the
guarantee across replicas that share a store.
*/
package session
