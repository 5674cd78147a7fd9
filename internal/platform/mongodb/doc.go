// Package mongodb provides a MongoDB implementation of the job store.
//
// Each job is one document in the jobs collection keyed by the job ID string.
// Status transitions are conditional updates filtered on the current status,
// so a terminal document is never overwritten.
package mongodb
