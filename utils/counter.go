package utils

import (
	"fmt"
	"os"

	fqdn "github.com/Showmax/go-fqdn"
	"github.com/google/uuid"
)

// An identity for this process used to mark flow leases:
// <hostname>-<pid>-<random>
func ProcessIdString() string {
	return fmt.Sprintf("%s-%d-%s", fqdn.Get(), os.Getpid(),
		uuid.New().String()[:8])
}
