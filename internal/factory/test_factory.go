package factory

import (
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/mcoot/globalchat/internal/dependencies/mocks"
	"github.com/mcoot/globalchat/internal/services/accounts"
	"github.com/mcoot/globalchat/internal/storage/memory"
	"github.com/mcoot/globalchat/internal/testutil"
)

// TestApp extends App with test-specific helpers
type TestApp struct {
	*App

	// Mocks for test control
	MockClock  *mocks.MockClock
	MockRandom *mocks.MockRandom
}

// NewTestApp creates an App configured for testing with mocked dependencies
func NewTestApp() *TestApp {
	return NewTestAppWithConfig(Config{})
}

// NewTestAppWithConfig is NewTestApp with component overrides. A zero
// bcrypt cost is replaced by the minimum to keep tests fast.
func NewTestAppWithConfig(cfg Config) *TestApp {
	store := memory.New()
	mockClock := mocks.NewMockClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	mockRandom := mocks.NewMockRandom()

	if cfg.Accounts == (accounts.Config{}) {
		cfg.Accounts = accounts.Config{BcryptCost: bcrypt.MinCost}
	}

	app := newWithDependencies(store, mockClock, mockRandom, testutil.NopLogger(), cfg)

	return &TestApp{
		App:        app,
		MockClock:  mockClock,
		MockRandom: mockRandom,
	}
}
