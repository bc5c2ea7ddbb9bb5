package core

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/agentkit-forge/agentkit/pkg/models"
)

// DefaultIDRetryLimit caps how many candidate IDs are tried per creation.
const DefaultIDRetryLimit = 50

const (
	suffixLen      = 6
	suffixAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
)

// taskIDPattern accepts generated IDs and the legacy form without a random
// suffix. Anything else could escape the task directory when used as a path.
var taskIDPattern = regexp.MustCompile(`^task-\d{8}-\d{3,}(-[a-z0-9]{6})?$`)

// ValidTaskID reports whether id has the task ID syntax.
func ValidTaskID(id string) bool {
	return taskIDPattern.MatchString(id)
}

// ReserveFunc claims id, returning an error matching models.ErrTaskExists
// if another record already holds it.
type ReserveFunc func(id string) error

// TaskIDGenerator produces task IDs of the form task-YYYYMMDD-NNN-xxxxxx.
type TaskIDGenerator interface {
	GenerateTaskID(now time.Time, reserve ReserveFunc) (string, error)
}

// IDLister lists the IDs of existing task records.
type IDLister interface {
	IDs() ([]string, error)
}

// scanningTaskIDGenerator derives the next sequence number from the records
// already on disk rather than from a persisted counter.
type scanningTaskIDGenerator struct {
	lister     IDLister
	retryLimit int
	suffix     func() (string, error)
}

// NewTaskIDGenerator creates a TaskIDGenerator that scans lister for the
// day's highest sequence. retryLimit bounds collision retries; values below
// 1 use DefaultIDRetryLimit.
func NewTaskIDGenerator(lister IDLister, retryLimit int) TaskIDGenerator {
	if retryLimit < 1 {
		retryLimit = DefaultIDRetryLimit
	}
	return &scanningTaskIDGenerator{lister: lister, retryLimit: retryLimit, suffix: randomSuffix}
}

// GenerateTaskID picks max(sequence)+1 for the UTC day of now, appends a
// random suffix and hands the candidate to reserve. On a collision the
// sequence is bumped and a new suffix drawn, up to the retry ceiling.
func (g *scanningTaskIDGenerator) GenerateTaskID(now time.Time, reserve ReserveFunc) (string, error) {
	prefix := "task-" + now.UTC().Format("20060102") + "-"

	ids, err := g.lister.IDs()
	if err != nil {
		return "", fmt.Errorf("scanning task IDs: %w", err)
	}
	seq := maxSequence(ids, prefix) + 1

	for attempt := 0; attempt < g.retryLimit; attempt++ {
		suffix, err := g.suffix()
		if err != nil {
			return "", err
		}
		candidate := fmt.Sprintf("%s%03d-%s", prefix, seq+attempt, suffix)
		err = reserve(candidate)
		if err == nil {
			return candidate, nil
		}
		if !errors.Is(err, models.ErrTaskExists) {
			return "", err
		}
	}
	return "", fmt.Errorf("%w: %d candidates for %s* were taken", ErrIDSpaceExhausted, g.retryLimit, prefix)
}

// maxSequence returns the highest NNN among ids that start with prefix, or 0.
func maxSequence(ids []string, prefix string) int {
	highest := 0
	for _, id := range ids {
		rest, ok := strings.CutPrefix(id, prefix)
		if !ok {
			continue
		}
		digits, _, _ := strings.Cut(rest, "-")
		n, err := strconv.Atoi(digits)
		if err != nil {
			continue
		}
		if n > highest {
			highest = n
		}
	}
	return highest
}

func randomSuffix() (string, error) {
	var b strings.Builder
	alphabetSize := big.NewInt(int64(len(suffixAlphabet)))
	for i := 0; i < suffixLen; i++ {
		n, err := rand.Int(rand.Reader, alphabetSize)
		if err != nil {
			return "", fmt.Errorf("generating task ID suffix: %w", err)
		}
		b.WriteByte(suffixAlphabet[n.Int64()])
	}
	return b.String(), nil
}
