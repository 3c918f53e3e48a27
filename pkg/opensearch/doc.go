// Package opensearch connects to an OpenSearch cluster and indexes delivery
// records so operators can search delivery history across tenants.
package opensearch
