/*
Package gateway is the node selector: it holds a backend pool of node
endpoints, polls each one's /capacity snapshot, and for every incoming
request picks the healthy backend whose available resources dominate the
route's requirement with the lowest utilization, then proxies the
request there.

Discovery is pluggable behind the BackendDiscoverer interface. Only a
static, configuration-driven discoverer ships here — resolving backends
from a live orchestration platform API is a named but unimplemented seam,
since calling out to a real platform API is outside what this module
covers.
*/
package gateway
