// Package job defines the transient print job handed from the job source to
// the printer within a single poll cycle.
package job

import (
	"fmt"
	"time"
)

// PrintJob holds the decoded XML for one poll cycle.
//
// PrintJob has no identity across cycles and is never stored. The job
// source does not provide identifiers, so ID is always zero.
type PrintJob struct {
	ID        int64
	XML       string
	Printed   bool
	CreatedAt time.Time
}

// New creates a PrintJob for the given XML payload.
func New(xml string) *PrintJob {
	return &PrintJob{
		XML:       xml,
		CreatedAt: time.Now(),
	}
}

// Size returns the payload length in bytes.
func (j *PrintJob) Size() int {
	return len(j.XML)
}

func (j *PrintJob) String() string {
	return fmt.Sprintf("PrintJob(id=%d, printed=%t, bytes=%d)", j.ID, j.Printed, j.Size())
}
