package dispose

//go:generate mockgen -destination=mocks/mock_trasher.go -package=mocks github.com/mattjoyce/sweeper/internal/dispose Trasher

// Trasher moves a file into a recoverable trash and returns where it went.
type Trasher interface {
	Trash(path string) (string, error)
}
