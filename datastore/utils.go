package datastore

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"www.velocidex.com/golang/flowsched/utils"
)

func validateSubject(subject string) error {
	if subject == "" || strings.IndexByte(subject, 0) >= 0 {
		return errors.WithMessage(utils.InvalidArgError,
			fmt.Sprintf("invalid subject %q", subject))
	}
	return nil
}

func notFoundError(subject, attribute string) error {
	return errors.WithMessage(errNotExist,
		fmt.Sprintf("While reading %v/%v: not found", subject, attribute))
}

// The smallest byte string greater than every string with this
// prefix, or nil if there is none.
func prefixUpperBound(prefix []byte) []byte {
	end := make([]byte, len(prefix))
	copy(end, prefix)
	for i := len(end) - 1; i >= 0; i-- {
		end[i] = end[i] + 1
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}
