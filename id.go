package megarray

import "github.com/mmont5/megarray/id"

// ID is the primary identifier type for all megarray entities.
type ID = id.ID

// Prefix identifies the entity type encoded in a TypeID.
type Prefix = id.Prefix
