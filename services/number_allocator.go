package services

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/yeremiapane/restaurant-tables/models"
	"github.com/yeremiapane/restaurant-tables/utils"
)

const (
	DefaultAllocationAttempts = 5

	autoNumberMin = 1
	autoNumberMax = 999
)

// autoNumberPattern is matched against normalized (upper-cased) numbers.
var autoNumberPattern = regexp.MustCompile(`^T(\d{3})$`)

// IsAutoNumber reports whether number has the generated T000 shape.
func IsAutoNumber(number string) bool {
	return autoNumberPattern.MatchString(models.NormalizeNumberKey(number))
}

func formatAutoNumber(n int) string {
	return fmt.Sprintf("T%03d", n)
}

// NextFreeNumber returns the lowest T001..T999 not present in taken.
func NextFreeNumber(taken []string) (string, bool) {
	used := make(map[int]struct{}, len(taken))
	for _, number := range taken {
		m := autoNumberPattern.FindStringSubmatch(models.NormalizeNumberKey(number))
		if len(m) != 2 {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		used[n] = struct{}{}
	}

	for n := autoNumberMin; n <= autoNumberMax; n++ {
		if _, ok := used[n]; !ok {
			return formatAutoNumber(n), true
		}
	}
	return "", false
}

type AllocationResult struct {
	Number      string `json:"number"`
	Requested   string `json:"requested,omitempty"`
	Substituted bool   `json:"substituted"`
	Attempts    int    `json:"attempts"`
}

// ClaimFunc persists a row under the given number. The unique index on the
// number is expected to reject duplicates at commit time.
type ClaimFunc func(number string) error

// TakenNumbersFunc lists the numbers currently stored.
type TakenNumbersFunc func(ctx context.Context) ([]string, error)

// NumberAllocator hands out table numbers. The scan of taken numbers only
// proposes a candidate; a unique violation returned by the claim is what
// decides a collision, after which the allocator rescans and retries.
type NumberAllocator struct {
	taken       TakenNumbersFunc
	maxAttempts int
}

func NewNumberAllocator(taken TakenNumbersFunc, maxAttempts int) *NumberAllocator {
	if maxAttempts <= 0 {
		maxAttempts = DefaultAllocationAttempts
	}
	return &NumberAllocator{
		taken:       taken,
		maxAttempts: maxAttempts,
	}
}

// TakenTableNumbers reads the number keys of all live tables.
func TakenTableNumbers(db *gorm.DB) TakenNumbersFunc {
	return func(ctx context.Context) ([]string, error) {
		var keys []string
		if err := db.WithContext(ctx).Model(&models.Table{}).Pluck("number_key", &keys).Error; err != nil {
			return nil, err
		}
		return keys, nil
	}
}

func (a *NumberAllocator) Allocate(ctx context.Context, requested string, claim ClaimFunc) (AllocationResult, error) {
	requested = strings.TrimSpace(requested)
	result := AllocationResult{Requested: requested}
	useRequested := requested != ""

	for attempt := 1; attempt <= a.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		result.Attempts = attempt

		candidate := requested
		if !useRequested {
			next, err := a.nextCandidate(ctx)
			if err != nil {
				return result, err
			}
			candidate = next
		}

		err := claim(candidate)
		if err == nil {
			result.Number = candidate
			return result, nil
		}
		if !isUniqueViolation(err) {
			return result, fmt.Errorf("claim %s -> %w", candidate, err)
		}
		allocationCollisions.Inc()

		if useRequested {
			if !IsAutoNumber(requested) {
				suggested, _ := a.nextCandidate(ctx)
				return result, &ConflictError{
					Reason:          fmt.Sprintf("table number %s is already in use", requested),
					SuggestedNumber: suggested,
				}
			}
			useRequested = false
			result.Substituted = true
		}

		utils.InfoLogger.WithFields(logrus.Fields{
			"candidate": candidate,
			"attempt":   attempt,
		}).Info("table number taken at commit, rescanning")
	}

	return result, &ConflictError{
		Reason: fmt.Sprintf("could not allocate a table number after %d attempts", a.maxAttempts),
	}
}

func (a *NumberAllocator) nextCandidate(ctx context.Context) (string, error) {
	taken, err := a.taken(ctx)
	if err != nil {
		return "", fmt.Errorf("a.taken -> %w", err)
	}
	next, ok := NextFreeNumber(taken)
	if !ok {
		return "", ErrNoCapacity
	}
	return next, nil
}
