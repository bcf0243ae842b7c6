package core

// DBOrdering is an ORDER BY clause element. Repositories are expected to
// whitelist Field against their own columns before interpolating it.
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
