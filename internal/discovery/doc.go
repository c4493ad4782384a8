// Package discovery implements fleet peer discovery and liveness.
//
// Every node publishes an intro record {name, uuid, role} on the shared
// discovery channel at startup and a raw uptime heartbeat on its own uuid
// channel every AnnounceInterval. Tracking a peer subscribes to its heartbeat
// channel; a peer that goes silent for 1.5x AnnounceInterval is expired from
// the registry and unsubscribed. Timeout expiry is the only failure detection;
// there is no active probing.
package discovery
