package model

import "github.com/google/uuid"

// Category buckets a document under the deal's storage layout.
type Category string

const (
	CategoryClient  Category = "client"
	CategoryVehicle Category = "vehicle"
	CategoryDeal    Category = "deal"
)

// dealNamespace is the UUID namespace for deriving deal ids from folder
// names. It is frozen: changing it silently re-identifies every existing
// deal, so it must never be swapped without a data migration.
var dealNamespace = uuid.NameSpaceURL

// DeriveDealID returns the deterministic version-5 UUID for a deal folder
// name. Identical folder names always yield identical ids across machines
// and runs, which is what makes re-running the pipeline safe.
func DeriveDealID(folderName string) uuid.UUID {
	return uuid.NewSHA1(dealNamespace, []byte(folderName))
}
