package portal

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"euserv-renewer/internal/components/retry"
	"euserv-renewer/internal/components/telemetry"
	"euserv-renewer/internal/mailpin"
)

const testSessionId = "abcdefghijklmnopqrstuvwxyz012345"

const (
	landingPage   = `<html><script>var sess_id = "` + testSessionId + `";</script><form></form></html>`
	captchaPage   = `<html><img src="/securimage_show.php"><input name="captcha_code"></html>`
	pinPage       = `<html><p>Please enter the PIN that you receive via email.</p><form><input type="hidden" name="c_id" value="C-77"><input name="pin"></form></html>`
	successPage   = `<html><p>Hello Ada</p><a href="?logout=1">Logout</a></html>`
	dashboardPage = `<html>
<div id="kc2_order_customer_orders_tab_content_1">
<table class="kc2_order_table kc2_content_table">
<tr><td class="td-z1-sp1-kc">12345</td><td class="td-z1-sp2-kc"><div class="kc2_order_action_container">Extend contract</div></td></tr>
<tr><td class="td-z1-sp1-kc">67890</td><td class="td-z1-sp2-kc"><div class="kc2_order_action_container">Contract extension possible from 2026-11-20</div></td></tr>
</table>
</div>
</html>`
	customerDataPage = `<html><form method="post">
<input type="hidden" name="subaction" value="kc2_customer_data_show">
<input type="hidden" name="c_id" value="C-77">
<input name="c_firstname" value="Ada">
<select name="c_country"><option value="DE">Germany</option><option value="FR" selected>France</option></select>
<input type="submit" name="Submit" value="Save">
</form></html>`
)

// mockPortal imitates the portal's login, dashboard and renewal endpoints.
type mockPortal struct {
	mu sync.Mutex

	noSessionId       bool
	badCredentials    bool
	locked            bool
	noCaptcha         bool
	captchaRejections int
	requirePin        bool
	finalPage         string
	tokenResponse     string
	extendStatus      int
	refreshResponse   string

	posts map[string][]url.Values
	gets  map[string]int
}

func newMockPortal() *mockPortal {
	return &mockPortal{
		tokenResponse:   `{"rs":"success","token":{"value":"T"}}`,
		extendStatus:    http.StatusOK,
		refreshResponse: "<p>Your customer data has been changed.</p>",
		posts:           map[string][]url.Values{},
		gets:            map[string]int{},
	}
}

func (m *mockPortal) postsOf(subaction string) []url.Values {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.posts[subaction]
}

func (m *mockPortal) getsOf(path string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gets[path]
}

func (m *mockPortal) afterCredentials() string {
	if m.requirePin {
		return pinPage
	}
	if m.finalPage != "" {
		return m.finalPage
	}
	return successPage
}

func (m *mockPortal) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if r.Method == http.MethodGet {
		key := r.URL.Path
		if action := r.URL.Query().Get("action"); action != "" {
			key += "?action=" + action
		} else if r.URL.Query().Has("sess_id") {
			key += "?sess_id"
		}
		m.gets[key]++

		switch key {
		case "/index.iphp":
			if m.noSessionId {
				fmt.Fprint(w, "<html>maintenance</html>")
				return
			}
			fmt.Fprint(w, landingPage)
		case "/index.iphp?sess_id":
			fmt.Fprint(w, dashboardPage)
		case "/index.iphp?action=show_customerdata":
			fmt.Fprint(w, customerDataPage)
		case "/pic/logo_small.png", "/securimage_show.php":
			w.Write([]byte{0x89, 'P', 'N', 'G'})
		default:
			http.NotFound(w, r)
		}
		return
	}

	err := r.ParseForm()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	subaction := r.PostForm.Get("subaction")
	m.posts[subaction] = append(m.posts[subaction], r.PostForm)

	switch subaction {
	case "login":
		switch {
		case r.PostForm.Has("email"):
			switch {
			case m.badCredentials:
				fmt.Fprint(w, "Please check email address/customer ID and password")
			case m.locked:
				fmt.Fprint(w, `<span id="kc2_login_iplock_cdown">300</span>`)
			case m.noCaptcha:
				fmt.Fprint(w, m.afterCredentials())
			default:
				fmt.Fprint(w, captchaPage)
			}
		case r.PostForm.Has("captcha_code"):
			if m.captchaRejections > 0 {
				m.captchaRejections--
				fmt.Fprint(w, captchaPage)
				return
			}
			fmt.Fprint(w, m.afterCredentials())
		case r.PostForm.Has("pin"):
			if r.PostForm.Get("pin") != "123456" || r.PostForm.Get("c_id") != "C-77" {
				fmt.Fprint(w, "<html>wrong pin</html>")
				return
			}
			fmt.Fprint(w, successPage)
		}
	case "kc2_customer_data_update":
		fmt.Fprint(w, m.refreshResponse)
	case "choose_order", "show_kc2_security_password_dialog":
		fmt.Fprint(w, "<html>ok</html>")
	case "kc2_security_password_get_token":
		w.Header().Set("content-type", "application/json")
		fmt.Fprint(w, m.tokenResponse)
	case "kc2_customer_contract_details_extend_contract_term":
		w.WriteHeader(m.extendStatus)
	default:
		http.Error(w, "unknown subaction", http.StatusBadRequest)
	}
}

type fakeSolver struct {
	mu     sync.Mutex
	calls  int
	answer string
	err    error
}

func (f *fakeSolver) Solve(ctx context.Context, image []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.answer, f.err
}

type fakePins struct {
	mu        sync.Mutex
	calls     int
	missing   int
	pin       string
	mailboxes []mailpin.Mailbox
}

func (f *fakePins) Fetch(ctx context.Context, mailbox mailpin.Mailbox) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.mailboxes = append(f.mailboxes, mailbox)
	if f.missing > 0 {
		f.missing--
		return "", mailpin.ErrNotFound
	}
	if f.pin == "" {
		return "", errors.New("mailbox unreachable")
	}
	return f.pin, nil
}

type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time {
	return c.now
}

func (fixedClock) Sleep(ctx context.Context, _ time.Duration) error {
	return ctx.Err()
}

var testToday = time.Date(2026, time.October, 16, 9, 30, 0, 0, time.UTC)

var testAccount = Account{
	Email:    "ada@example.com",
	Password: "hunter2",
	Mailbox: mailpin.Mailbox{
		Server:   "imap.example.com",
		Address:  "ada@example.com",
		Password: "mailpass",
	},
}

type harness struct {
	portal *mockPortal
	solver *fakeSolver
	pins   *fakePins
	opts   Options
}

func newHarness(t *testing.T, portal *mockPortal) *harness {
	server := httptest.NewServer(portal)
	t.Cleanup(server.Close)

	return &harness{
		portal: portal,
		solver: &fakeSolver{answer: "5"},
		pins:   &fakePins{pin: "123456"},
		opts: Options{
			BaseURL: server.URL,
			Captcha: retry.Policy{MaxAttempts: 3},
			PinPoll: retry.Policy{MaxAttempts: 3},
		},
	}
}

func (h *harness) session(t *testing.T) *Session {
	s, err := NewSession(testAccount, h.opts, h.solver, h.pins, fixedClock{now: testToday}, telemetry.Noop{})
	if err != nil {
		t.Fatal(err)
	}
	return s
}
