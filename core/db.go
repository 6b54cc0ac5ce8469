package core

// MaxBatchSize caps the number of writes committed per batch, with headroom
// under the backend's hard 500-operation limit.
const MaxBatchSize = 450

// DBOrdering is an ORDER BY clause element.
type DBOrdering struct {
	Field     string
	Ascending bool
}

func (ord DBOrdering) String() string {
	direction := "DESC"
	if ord.Ascending {
		direction = "ASC"
	}
	return ord.Field + " " + direction
}
