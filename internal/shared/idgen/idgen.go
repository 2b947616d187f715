// Package idgen generates the short opaque ids the dispatch plane uses for
// task ids, and wraps ULID generation for assets, messages, and users.
package idgen

import (
	"crypto/rand"
	"math/big"
	"time"

	"github.com/oklog/ulid/v2"
)

const taskIDAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// TaskIDLength is the length of a generated task id.
const TaskIDLength = 14

// NewTaskID returns a fresh 14-character alphanumeric task id. It is not
// globally unique by construction — callers must retry on the store's
// unique-constraint violation.
func NewTaskID() (string, error) {
	buf := make([]byte, TaskIDLength)
	alphabetLen := big.NewInt(int64(len(taskIDAlphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, alphabetLen)
		if err != nil {
			return "", err
		}
		buf[i] = taskIDAlphabet[n.Int64()]
	}
	return string(buf), nil
}

// NewULID returns a fresh time-sortable ULID string, used for asset ids,
// chat message ids, and user ids.
func NewULID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), ulid.DefaultEntropy()).String()
}
