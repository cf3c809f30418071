package orders

import (
	"fmt"
	"math/rand/v2"
	"time"
)

const maxNumberAttempts = 5

// newOrderNumber builds a human-readable number like ORD-20260830-482913.
// Uniqueness is enforced by the database index; callers retry on collision.
func newOrderNumber() string {
	return fmt.Sprintf("ORD-%s-%06d", time.Now().Format("20060102"), rand.IntN(1_000_000))
}
