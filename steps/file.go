package steps

import (
	"context"
	"fmt"
	"os"
	"strconv"
)

// File reads a file fresh on every request and writes it as the response
// body (§4.3 File). Any I/O error that happens before headers are written is
// reported as a 500 with the error text. Final.
type File struct {
	Status  int
	Headers map[string]string
	Path    string
}

func (s *File) IsFinal() bool { return true }

func (s *File) Handle(ctx context.Context, e *Exec) (Result, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		e.Res.WriteHeader(500, "", map[string]string{"Content-Type": "text/plain"})
		e.Res.Write([]byte(fmt.Sprintf("Error reading file: %s", err)))
		return Result{Continue: false}, nil
	}

	headers := mergeHeaders(s.Headers)
	headers["Content-Length"] = strconv.Itoa(len(data))

	status := s.Status
	if status == 0 {
		status = 200
	}
	e.Res.WriteHeader(status, "", headers)
	if _, err := e.Res.Write(data); err != nil {
		return Result{}, err
	}
	return Result{Continue: false}, nil
}
