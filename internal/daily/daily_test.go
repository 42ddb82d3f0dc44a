package daily

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDateKeyIsUTC(t *testing.T) {
	// 23:30 in UTC-5 is already the next day in UTC
	loc := time.FixedZone("UTC-5", -5*60*60)
	ts := time.Date(2024, 3, 1, 23, 30, 0, 0, loc)
	assert.Equal(t, "2024-03-02", DateKey(ts))
}

func TestSeedDeterministicPerDateAndSalt(t *testing.T) {
	day := time.Date(2024, 3, 2, 12, 0, 0, 0, time.UTC)
	sameDayLater := time.Date(2024, 3, 2, 23, 59, 0, 0, time.UTC)
	nextDay := time.Date(2024, 3, 3, 0, 1, 0, 0, time.UTC)

	assert.Equal(t, Seed(day, "salt"), Seed(sameDayLater, "salt"),
		"seed depends on the date, not the time of day")
	assert.NotEqual(t, Seed(day, "salt"), Seed(nextDay, "salt"))
	assert.NotEqual(t, Seed(day, "salt"), Seed(day, "pepper"))
	assert.GreaterOrEqual(t, Seed(day, "salt"), int64(0))
}
