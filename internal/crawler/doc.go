// Package crawler holds the catalog harvester's domain model and the
// contracts between the pagination controller, the persistence layer and the
// rendering layer. It must not import drivers or concrete clients.
package crawler
