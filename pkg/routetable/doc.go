/*
Package routetable builds the immutable mapping from (method, path
pattern) to handler name and resource requirement that the HTTP
front-end and the gateway both consume.

The source document is an OpenAPI-shaped YAML file. Only two things are
ever read out of it: paths.<path>.<method>.operationId (the handler
name, with any "handler:" style prefix stripped) and the
x-neutrino-resources extension (a {cpus, gpus, memory_gb} map, defaulted
to {1, 0, 1} when absent). It is parsed into a generic map[string]any via
gopkg.in/yaml.v3 rather than a full schema-validating OpenAPI object
model, since nothing else in the document is ever consulted.

Matching is exact on method; on path, the longest literal (non-parameter)
prefix wins, ties broken by path pattern and then method in lexical
order. The order in which the document declares its paths is not kept,
since the document is unmarshalled into a map. This is the same rule the
table is sorted by once at load time, so callers needing to express registration
precedence (gorilla/mux, the gateway's own matcher) can just iterate
Table.Entries() in order.
*/
package routetable
