package bridge_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/fastygo/rolegate/domain"
	"github.com/fastygo/rolegate/internal/mocks"
	authUC "github.com/fastygo/rolegate/usecase/auth"
	"github.com/fastygo/rolegate/usecase/bridge"
)

type outcomes struct {
	mu   sync.Mutex
	seen []string
}

func (o *outcomes) ObserveBridge(outcome string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.seen = append(o.seen, outcome)
}

func newAuth(accounts *mocks.AccountStore) *authUC.UseCase {
	return authUC.New(authUC.Options{
		Accounts:   accounts,
		Sessions:   mocks.NewSessionStore(),
		BcryptCost: bcrypt.MinCost,
	})
}

func TestBridgeCreatesAccountOnFirstUse(t *testing.T) {
	accounts := mocks.NewAccountStore()
	obs := &outcomes{}
	b := bridge.New(newAuth(accounts), bridge.NewDeriver("pepper"), time.Second, obs, nil)

	ext := domain.ExternalIdentity{Phone: "+1 555 0100", TokenID: "jti-1"}
	first, err := b.Bridge(context.Background(), ext)
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, "15550100", first.Phone)
	assert.Equal(t, "jti-1", first.TokenID)

	second, err := b.Bridge(context.Background(), ext)
	require.NoError(t, err)

	assert.Equal(t, first.UserID, second.UserID, "the same identity maps to the same backend user")
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, 1, accounts.Count())
	assert.Equal(t, []string{"created", "signed_in"}, obs.seen)
}

func TestBridgeTreatsExistingAccountAsCreated(t *testing.T) {
	stub := &accountsStub{
		signIn: func(calls int) (*domain.Session, error) {
			if calls == 1 {
				return nil, domain.ErrInvalidCredentials
			}
			return &domain.Session{ID: "s1", UserID: "u1"}, nil
		},
		signUpErr: domain.ErrAccountExists,
	}

	session, err := bridge.New(stub, bridge.NewDeriver("p"), time.Second, nil, nil).
		Bridge(context.Background(), domain.ExternalIdentity{Email: "a@example.com"})
	require.NoError(t, err)
	assert.Equal(t, "u1", session.UserID)
	assert.Equal(t, 2, stub.signInCalls)
	assert.Equal(t, 1, stub.signUpCalls)
}

func TestBridgeFailures(t *testing.T) {
	network := errors.New("connection refused")

	cases := []struct {
		name      string
		stub      *accountsStub
		ext       domain.ExternalIdentity
		wantStage string
		signUps   int
	}{
		{
			name:      "no identifier",
			stub:      &accountsStub{},
			ext:       domain.ExternalIdentity{},
			wantStage: "derive",
		},
		{
			name: "sign in network failure is not retried",
			stub: &accountsStub{signIn: func(int) (*domain.Session, error) {
				return nil, network
			}},
			ext:       domain.ExternalIdentity{Phone: "1555"},
			wantStage: "sign_in",
		},
		{
			name: "sign up failure",
			stub: &accountsStub{
				signIn:    func(int) (*domain.Session, error) { return nil, domain.ErrInvalidCredentials },
				signUpErr: network,
			},
			ext:       domain.ExternalIdentity{Phone: "1555"},
			wantStage: "sign_up",
			signUps:   1,
		},
		{
			name: "sign in after sign up fails",
			stub: &accountsStub{
				signIn: func(int) (*domain.Session, error) { return nil, domain.ErrInvalidCredentials },
			},
			ext:       domain.ExternalIdentity{Phone: "1555"},
			wantStage: "sign_in_after_sign_up",
			signUps:   1,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			obs := &outcomes{}
			_, err := bridge.New(tc.stub, bridge.NewDeriver("p"), time.Second, obs, nil).
				Bridge(context.Background(), tc.ext)

			var bridgeErr *domain.IdentityBridgeError
			require.ErrorAs(t, err, &bridgeErr)
			assert.Equal(t, tc.wantStage, bridgeErr.Stage)
			assert.True(t, domain.IsDomainError(err, domain.ErrCodeBridgeFailed))
			assert.Contains(t, err.Error(), domain.MsgAccountSetupFailed)
			assert.Equal(t, tc.signUps, tc.stub.signUpCalls)
			assert.Equal(t, []string{"failed"}, obs.seen)
		})
	}
}

func TestBridgeTimeout(t *testing.T) {
	stub := &accountsStub{block: true}
	_, err := bridge.New(stub, bridge.NewDeriver("p"), 20*time.Millisecond, nil, nil).
		Bridge(context.Background(), domain.ExternalIdentity{Phone: "1555"})

	var bridgeErr *domain.IdentityBridgeError
	require.ErrorAs(t, err, &bridgeErr)
	assert.True(t, domain.IsDomainError(bridgeErr.Err, domain.ErrCodeTimeout))
}

type accountsStub struct {
	signIn    func(calls int) (*domain.Session, error)
	signUpErr error
	block     bool

	signInCalls int
	signUpCalls int
}

func (s *accountsStub) SignIn(ctx context.Context, _, _ string, _ domain.ExternalIdentity) (*domain.Session, error) {
	s.signInCalls++
	if s.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if s.signIn == nil {
		return nil, domain.ErrInvalidCredentials
	}
	return s.signIn(s.signInCalls)
}

func (s *accountsStub) SignUp(context.Context, string, string, domain.ExternalIdentity) error {
	s.signUpCalls++
	return s.signUpErr
}
