package portal

import (
	"context"
	"net/http"
	"net/url"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestLoginWithCaptchaAndPin(t *testing.T) {
	portal := newMockPortal()
	portal.captchaRejections = 1
	portal.requirePin = true
	h := newHarness(t, portal)
	h.pins.missing = 1

	s := h.session(t)
	err := s.Login(context.Background())
	require.NoError(t, err)

	require.Equal(t, StateAuthenticated, s.State())
	require.Equal(t, "C-77", s.CustomerID())
	require.Equal(t, 2, h.solver.calls)
	require.Equal(t, 2, h.pins.calls)
	require.Equal(t, testAccount.Mailbox, h.pins.mailboxes[0])
	require.Equal(t, 1, portal.getsOf("/pic/logo_small.png"))
	require.Equal(t, 2, portal.getsOf("/securimage_show.php"))

	logins := portal.postsOf("login")
	require.Len(t, logins, 4)

	credentials := logins[0]
	require.Equal(t, testAccount.Email, credentials.Get("email"))
	require.Equal(t, testAccount.Password, credentials.Get("password"))
	require.Equal(t, "en", credentials.Get("form_selected_language"))
	require.Equal(t, testSessionId, credentials.Get("sess_id"))

	require.Equal(t, "5", logins[1].Get("captcha_code"))
	require.Equal(t, testSessionId, logins[2].Get("sess_id"))
	require.Equal(t, "123456", logins[3].Get("pin"))
	require.Equal(t, "C-77", logins[3].Get("c_id"))
}

func TestLoginWithoutChallenges(t *testing.T) {
	portal := newMockPortal()
	portal.noCaptcha = true
	h := newHarness(t, portal)

	s := h.session(t)
	require.NoError(t, s.Login(context.Background()))
	require.Equal(t, StateAuthenticated, s.State())
	require.Zero(t, h.solver.calls)
	require.Zero(t, h.pins.calls)
}

func TestLoginFailures(t *testing.T) {
	cases := []struct {
		name         string
		setup        func(p *mockPortal, h *harness)
		expected     error
		solverCalls  int
		captchaPosts int
	}{
		{
			name:     "no session id",
			setup:    func(p *mockPortal, _ *harness) { p.noSessionId = true },
			expected: ErrSessionAcquisition,
		},
		{
			name:     "bad credentials",
			setup:    func(p *mockPortal, _ *harness) { p.badCredentials = true },
			expected: ErrBadCredentials,
		},
		{
			name:     "locked",
			setup:    func(p *mockPortal, _ *harness) { p.locked = true },
			expected: ErrLocked,
		},
		{
			name:         "captcha never accepted",
			setup:        func(p *mockPortal, _ *harness) { p.captchaRejections = 100 },
			expected:     ErrCaptchaExhausted,
			solverCalls:  3,
			captchaPosts: 3,
		},
		{
			name:        "captcha unreadable",
			setup:       func(_ *mockPortal, h *harness) { h.solver.err = context.DeadlineExceeded },
			expected:    ErrCaptchaExhausted,
			solverCalls: 3,
		},
		{
			name: "pin never arrives",
			setup: func(p *mockPortal, h *harness) {
				p.requirePin = true
				h.pins.missing = 100
			},
			expected:     ErrPinNotFound,
			solverCalls:  1,
			captchaPosts: 1,
		},
		{
			name: "unrecognized final page",
			setup: func(p *mockPortal, _ *harness) {
				p.finalPage = "<html>please wait</html>"
			},
			expected:     ErrLoginUnconfirmed,
			solverCalls:  1,
			captchaPosts: 1,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			portal := newMockPortal()
			h := newHarness(t, portal)
			tc.setup(portal, h)

			s := h.session(t)
			err := s.Login(context.Background())
			require.ErrorIs(t, err, tc.expected)
			require.Equal(t, StateFailed, s.State())
			require.Equal(t, tc.solverCalls, h.solver.calls)

			captchaPosts := 0
			for _, form := range portal.postsOf("login") {
				if form.Has("captcha_code") {
					captchaPosts++
				}
			}
			require.Equal(t, tc.captchaPosts, captchaPosts)

			require.ErrorIs(t, s.Login(context.Background()), errSessionUsed)
			_, err = s.ListOrders(context.Background())
			require.ErrorIs(t, err, ErrNotAuthenticated)
		})
	}
}

func loggedIn(t *testing.T, portal *mockPortal) (*Session, *harness) {
	t.Helper()
	portal.noCaptcha = true
	h := newHarness(t, portal)
	s := h.session(t)
	require.NoError(t, s.Login(context.Background()))
	return s, h
}

func TestListOrders(t *testing.T) {
	s, _ := loggedIn(t, newMockPortal())

	orders, err := s.ListOrders(context.Background())
	require.NoError(t, err)
	require.Len(t, orders, 2)

	require.Equal(t, "12345", orders[0].ID)
	require.True(t, orders[0].Eligible)
	require.Empty(t, orders[0].EligibleDate())

	require.Equal(t, "67890", orders[1].ID)
	require.False(t, orders[1].Eligible)
	require.Equal(t, "2026-11-20", orders[1].EligibleDate())

	require.Equal(t, StateIdle, s.State())
}

func TestRefreshCustomerData(t *testing.T) {
	portal := newMockPortal()
	s, _ := loggedIn(t, portal)

	require.NoError(t, s.RefreshCustomerData(context.Background()))
	require.Equal(t, 1, portal.getsOf("/index.iphp?action=show_customerdata"))

	updates := portal.postsOf("kc2_customer_data_update")
	require.Len(t, updates, 1)

	expected := url.Values{
		"sess_id":     {testSessionId},
		"subaction":   {"kc2_customer_data_update"},
		"c_id":        {"C-77"},
		"c_firstname": {"Ada"},
		"c_country":   {"FR"},
	}
	if diff := cmp.Diff(expected, updates[0]); diff != "" {
		t.Fatalf("submitted form (-want +got):\n%s", diff)
	}
}

func TestRefreshCustomerDataUnconfirmed(t *testing.T) {
	portal := newMockPortal()
	portal.refreshResponse = "<p>Please correct the marked fields</p>"
	s, _ := loggedIn(t, portal)

	require.ErrorIs(t, s.RefreshCustomerData(context.Background()), ErrRefreshUnconfirmed)

	// the session survives a failed refresh
	orders, err := s.ListOrders(context.Background())
	require.NoError(t, err)
	require.Len(t, orders, 2)
}

func TestRenew(t *testing.T) {
	portal := newMockPortal()
	s, h := loggedIn(t, portal)

	require.NoError(t, s.Renew(context.Background(), "12345"))
	require.Equal(t, StateIdle, s.State())

	choose := portal.postsOf("choose_order")
	require.Len(t, choose, 1)
	require.Equal(t, "12345", choose[0].Get("ord_no"))
	require.Equal(t, "show_contract_details", choose[0].Get("choose_order_subaction"))

	require.Len(t, portal.postsOf("show_kc2_security_password_dialog"), 1)

	token := portal.postsOf("kc2_security_password_get_token")
	require.Len(t, token, 1)
	require.Equal(t, "123456", token[0].Get("auth"))
	require.Equal(t, extendContractPrefix+"12345", token[0].Get("ident"))

	extend := portal.postsOf("kc2_customer_contract_details_extend_contract_term")
	require.Len(t, extend, 1)
	require.Equal(t, "T", extend[0].Get("auth"))
	require.Equal(t, "12345", extend[0].Get("ord_id"))

	require.Equal(t, 1, h.pins.calls)
}

func TestRenewFailures(t *testing.T) {
	cases := []struct {
		name          string
		tokenResponse string
		extendStatus  int
		expected      error
		extendPosts   int
	}{
		{
			name:          "token rejected",
			tokenResponse: `{"rs":"error","error":"wrong pin"}`,
			expected:      ErrTokenRejected,
		},
		{
			name:          "token undecodable",
			tokenResponse: `<html>session expired</html>`,
			expected:      ErrTokenRejected,
		},
		{
			name:          "token empty",
			tokenResponse: `{"rs":"success","token":{}}`,
			expected:      ErrTokenRejected,
		},
		{
			name:          "extension refused",
			tokenResponse: `{"rs":"success","token":{"value":"T"}}`,
			extendStatus:  http.StatusInternalServerError,
			expected:      ErrUnexpectedStatus,
			extendPosts:   1,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			portal := newMockPortal()
			portal.tokenResponse = tc.tokenResponse
			if tc.extendStatus != 0 {
				portal.extendStatus = tc.extendStatus
			}
			s, _ := loggedIn(t, portal)

			err := s.Renew(context.Background(), "12345")
			require.ErrorIs(t, err, tc.expected)
			require.Len(t, portal.postsOf("kc2_customer_contract_details_extend_contract_term"), tc.extendPosts)

			// the next order can still be renewed on the same session
			portal.mu.Lock()
			portal.tokenResponse = `{"rs":"success","token":{"value":"T2"}}`
			portal.extendStatus = http.StatusOK
			portal.mu.Unlock()

			require.NoError(t, s.Renew(context.Background(), "67890"))
		})
	}
}

func TestRenewRequiresLogin(t *testing.T) {
	h := newHarness(t, newMockPortal())
	s := h.session(t)

	require.ErrorIs(t, s.Renew(context.Background(), "12345"), ErrNotAuthenticated)
	require.ErrorIs(t, s.RefreshCustomerData(context.Background()), ErrNotAuthenticated)
	require.Empty(t, h.portal.postsOf("choose_order"))
}
