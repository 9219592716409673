package handlers

import (
	"context"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"expense-tracker/internal/accounts"
	"expense-tracker/internal/ledger"
	"expense-tracker/internal/middleware"
	"expense-tracker/internal/models"
	"expense-tracker/internal/session"
	"expense-tracker/internal/storage"
	"expense-tracker/web"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

// captureMailer records the latest verification token per address.
type captureMailer struct {
	mu     sync.Mutex
	tokens map[string]string
}

func (m *captureMailer) SendVerification(_ context.Context, email, _, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[email] = token
	return nil
}

func (m *captureMailer) SendLoginAlert(context.Context, string, string, time.Time) error {
	return nil
}

func (m *captureMailer) token(email string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tokens[email]
}

type HandlersTestSuite struct {
	suite.Suite
	db       *storage.DB
	mailer   *captureMailer
	accounts *accounts.Service
	ledger   *ledger.Service
	handlers *Handlers
	server   *httptest.Server
	ctx      context.Context
}

func (suite *HandlersTestSuite) SetupTest() {
	db, err := storage.NewDB(":memory:")
	require.NoError(suite.T(), err)
	suite.db = db
	suite.ctx = context.Background()
	suite.mailer = &captureMailer{tokens: map[string]string{}}
	suite.accounts = accounts.NewService(db, suite.mailer, accounts.Options{RequireVerification: true})
	suite.ledger = ledger.NewService(db, ledger.Options{AllowNonPositive: true})

	suite.handlers, err = NewHandlers(Deps{
		Accounts:  suite.accounts,
		Sessions:  session.NewManager(db, []byte("handler-test-secret"), time.Hour, true),
		Ledger:    suite.ledger,
		Templates: web.Templates(),
	})
	require.NoError(suite.T(), err)

	r := chi.NewRouter()
	suite.handlers.Register(r, nil)
	suite.server = httptest.NewServer(r)
}

func (suite *HandlersTestSuite) TearDownTest() {
	suite.server.Close()
	suite.db.Close()
}

func (suite *HandlersTestSuite) client() *http.Client {
	jar, err := cookiejar.New(nil)
	require.NoError(suite.T(), err)
	return &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func (suite *HandlersTestSuite) get(c *http.Client, path string) (*http.Response, string) {
	resp, err := c.Get(suite.server.URL + path)
	require.NoError(suite.T(), err)
	return resp, readBody(suite.T(), resp)
}

func (suite *HandlersTestSuite) post(c *http.Client, path string, form url.Values) (*http.Response, string) {
	resp, err := c.PostForm(suite.server.URL+path, form)
	require.NoError(suite.T(), err)
	return resp, readBody(suite.T(), resp)
}

func readBody(t *testing.T, resp *http.Response) string {
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(b)
}

func (suite *HandlersTestSuite) createVerified(username string) *models.User {
	u, err := suite.accounts.CreateVerifiedUser(suite.ctx, username, username+"@example.com", "secret-"+username)
	require.NoError(suite.T(), err)
	return u
}

func (suite *HandlersTestSuite) loginAs(username string) *http.Client {
	c := suite.client()
	resp, _ := suite.post(c, "/login", url.Values{"username": {username}, "password": {"secret-" + username}})
	require.Equal(suite.T(), http.StatusFound, resp.StatusCode)
	require.Equal(suite.T(), "/dashboard", resp.Header.Get("Location"))
	return c
}

func (suite *HandlersTestSuite) TestSignupVerifyLoginFlow() {
	c := suite.client()
	signup := url.Values{"username": {"carol"}, "email": {"carol@example.com"}, "password": {"pw-carol"}}

	resp, _ := suite.post(c, "/signup", signup)
	require.Equal(suite.T(), http.StatusFound, resp.StatusCode)
	assert.Equal(suite.T(), "/login", resp.Header.Get("Location"))

	_, body := suite.get(c, "/login")
	assert.Contains(suite.T(), body, "Check your email for a verification link")

	login := url.Values{"username": {"carol"}, "password": {"pw-carol"}}
	resp, body = suite.post(c, "/login", login)
	assert.Equal(suite.T(), http.StatusForbidden, resp.StatusCode, "unverified login refused")
	assert.Contains(suite.T(), body, "Please verify your email before logging in.")
	assert.Contains(suite.T(), body, `href="/resend-verification"`)

	token := suite.mailer.token("carol@example.com")
	require.NotEmpty(suite.T(), token)
	resp, _ = suite.get(c, "/verify-email/"+token)
	require.Equal(suite.T(), http.StatusFound, resp.StatusCode)
	assert.Equal(suite.T(), "/login", resp.Header.Get("Location"))

	resp, _ = suite.get(c, "/verify-email/"+token)
	assert.Equal(suite.T(), http.StatusBadRequest, resp.StatusCode, "token is single use")

	resp, _ = suite.post(c, "/login", login)
	require.Equal(suite.T(), http.StatusFound, resp.StatusCode)
	assert.Equal(suite.T(), "/dashboard", resp.Header.Get("Location"))

	resp, body = suite.get(c, "/dashboard")
	require.Equal(suite.T(), http.StatusOK, resp.StatusCode)
	assert.Contains(suite.T(), body, "Logged in successfully.")
	assert.Contains(suite.T(), body, `"No Data":0`)
}

func (suite *HandlersTestSuite) TestSignupErrors() {
	suite.createVerified("alice")
	c := suite.client()

	resp, body := suite.post(c, "/signup", url.Values{"username": {"alice"}, "email": {"new@example.com"}, "password": {"x"}})
	assert.Equal(suite.T(), http.StatusConflict, resp.StatusCode)
	assert.Contains(suite.T(), body, "Username or Email already exists!")

	resp, body = suite.post(c, "/signup", url.Values{"username": {"dave"}, "email": {"not-an-email"}, "password": {"x"}})
	assert.Equal(suite.T(), http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Contains(suite.T(), body, `value="dave"`, "submitted values are kept")

	_, err := suite.db.GetUserByUsername(suite.ctx, "dave")
	assert.ErrorIs(suite.T(), err, models.ErrNotFound)
}

func (suite *HandlersTestSuite) TestVerifyUnknownToken() {
	resp, body := suite.get(suite.client(), "/verify-email/nope")
	assert.Equal(suite.T(), http.StatusBadRequest, resp.StatusCode)
	assert.Contains(suite.T(), body, "invalid or has already been used")
}

func (suite *HandlersTestSuite) TestResendIsGenericAndRotatesToken() {
	c := suite.client()
	suite.post(c, "/signup", url.Values{"username": {"erin"}, "email": {"erin@example.com"}, "password": {"pw"}})
	first := suite.mailer.token("erin@example.com")
	suite.createVerified("frank")

	var locations []string
	for _, email := range []string{"erin@example.com", "nobody@example.com", "frank@example.com"} {
		resp, _ := suite.post(c, "/resend-verification", url.Values{"email": {email}})
		require.Equal(suite.T(), http.StatusFound, resp.StatusCode, email)
		locations = append(locations, resp.Header.Get("Location"))
	}
	assert.Equal(suite.T(), []string{"/login", "/login", "/login"}, locations)

	second := suite.mailer.token("erin@example.com")
	require.NotEqual(suite.T(), first, second)

	resp, _ := suite.get(c, "/verify-email/"+first)
	assert.Equal(suite.T(), http.StatusBadRequest, resp.StatusCode, "old token invalidated")
	resp, _ = suite.get(c, "/verify-email/"+second)
	assert.Equal(suite.T(), http.StatusFound, resp.StatusCode)

	resp, _ = suite.post(c, "/resend-verification", url.Values{"email": {""}})
	assert.Equal(suite.T(), http.StatusUnprocessableEntity, resp.StatusCode)
}

func (suite *HandlersTestSuite) TestLoginFailures() {
	suite.createVerified("alice")
	c := suite.client()

	resp, body := suite.post(c, "/login", url.Values{"username": {"alice"}, "password": {"wrong"}})
	assert.Equal(suite.T(), http.StatusUnauthorized, resp.StatusCode)
	assert.Contains(suite.T(), body, "Invalid Credentials!")

	resp, body2 := suite.post(c, "/login", url.Values{"username": {"ghost"}, "password": {"wrong"}})
	assert.Equal(suite.T(), http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(suite.T(), body, strings.ReplaceAll(body2, `value="ghost"`, `value="alice"`), "same page for unknown user")

	resp, _ = suite.post(c, "/login", url.Values{"username": {""}, "password": {""}})
	assert.Equal(suite.T(), http.StatusUnprocessableEntity, resp.StatusCode)
}

func (suite *HandlersTestSuite) TestProtectedRoutesRequireSession() {
	c := suite.client()
	for _, path := range []string{"/dashboard", "/expenses", "/add-expense", "/edit-expense/1", "/logout"} {
		resp, _ := suite.get(c, path)
		assert.Equal(suite.T(), http.StatusFound, resp.StatusCode, path)
		assert.Equal(suite.T(), "/login", resp.Header.Get("Location"), path)
	}

	u, err := url.Parse(suite.server.URL)
	require.NoError(suite.T(), err)
	c.Jar.SetCookies(u, []*http.Cookie{{Name: SessionCookieName, Value: "forged.token.value"}})
	resp, _ := suite.get(c, "/dashboard")
	assert.Equal(suite.T(), http.StatusFound, resp.StatusCode)
	assert.Equal(suite.T(), "/login", resp.Header.Get("Location"))
}

func (suite *HandlersTestSuite) TestIndexRedirects() {
	resp, _ := suite.get(suite.client(), "/")
	assert.Equal(suite.T(), "/login", resp.Header.Get("Location"))

	suite.createVerified("alice")
	resp, _ = suite.get(suite.loginAs("alice"), "/")
	assert.Equal(suite.T(), "/dashboard", resp.Header.Get("Location"))
}

func (suite *HandlersTestSuite) TestLogout() {
	suite.createVerified("alice")
	c := suite.loginAs("alice")

	resp, _ := suite.get(c, "/logout")
	require.Equal(suite.T(), http.StatusFound, resp.StatusCode)

	_, body := suite.get(c, "/login")
	assert.Contains(suite.T(), body, "You have been logged out.")

	resp, _ = suite.get(c, "/dashboard")
	assert.Equal(suite.T(), "/login", resp.Header.Get("Location"))
}

func (suite *HandlersTestSuite) TestAddExpense() {
	suite.createVerified("alice")
	c := suite.loginAs("alice")

	resp, _ := suite.post(c, "/add-expense", url.Values{"amount": {"12.50"}, "category": {"Food"}, "note": {"lunch"}, "date": {"2024-03-01"}})
	require.Equal(suite.T(), http.StatusFound, resp.StatusCode)
	assert.Equal(suite.T(), "/dashboard", resp.Header.Get("Location"))

	resp, body := suite.get(c, "/expenses")
	require.Equal(suite.T(), http.StatusOK, resp.StatusCode)
	assert.Contains(suite.T(), body, "12.50")
	assert.Contains(suite.T(), body, "lunch")
	assert.Contains(suite.T(), body, "FRI, 01 MAR &#39;24")
}

func (suite *HandlersTestSuite) TestAddExpenseValidation() {
	user := suite.createVerified("alice")
	c := suite.loginAs("alice")

	resp, body := suite.post(c, "/add-expense", url.Values{"amount": {"abc"}, "category": {"Food"}})
	assert.Equal(suite.T(), http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Contains(suite.T(), body, "Please enter a valid amount.")
	assert.Contains(suite.T(), body, `value="abc"`)

	resp, body = suite.post(c, "/add-expense", url.Values{"amount": {"3"}, "date": {"03/01/2024"}})
	assert.Equal(suite.T(), http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Contains(suite.T(), body, "Invalid date format")

	list, err := suite.ledger.List(suite.ctx, user.ID)
	require.NoError(suite.T(), err)
	assert.Empty(suite.T(), list)
}

func (suite *HandlersTestSuite) TestEditExpense() {
	user := suite.createVerified("alice")
	e, err := suite.ledger.Add(suite.ctx, user.ID, ledger.Input{Amount: "10", Category: "Food", Note: "lunch", Date: "2024-03-01"})
	require.NoError(suite.T(), err)
	c := suite.loginAs("alice")

	path := "/edit-expense/" + itoa(e.ID)
	resp, body := suite.get(c, path)
	require.Equal(suite.T(), http.StatusOK, resp.StatusCode)
	assert.Contains(suite.T(), body, `value="lunch"`)

	resp, _ = suite.post(c, path, url.Values{"amount": {"12"}, "category": {""}, "note": {""}, "date": {""}})
	require.Equal(suite.T(), http.StatusFound, resp.StatusCode)
	assert.Equal(suite.T(), "/expenses", resp.Header.Get("Location"))

	got, err := suite.db.GetExpense(suite.ctx, e.ID)
	require.NoError(suite.T(), err)
	assert.True(suite.T(), decimal.NewFromInt(12).Equal(got.Amount))
	assert.Equal(suite.T(), "Food", got.Category, "blank category keeps value")
	assert.Equal(suite.T(), "", got.Note, "submitted note replaces value")
	assert.Equal(suite.T(), "2024-03-01", got.Day())

	resp, _ = suite.post(c, path, url.Values{"amount": {"x"}})
	assert.Equal(suite.T(), http.StatusUnprocessableEntity, resp.StatusCode)
}

func (suite *HandlersTestSuite) TestForeignAndUnknownExpenses() {
	alice := suite.createVerified("alice")
	suite.createVerified("bob")
	e, err := suite.ledger.Add(suite.ctx, alice.ID, ledger.Input{Amount: "10", Category: "Food"})
	require.NoError(suite.T(), err)
	bob := suite.loginAs("bob")
	path := itoa(e.ID)

	resp, _ := suite.get(bob, "/edit-expense/"+path)
	require.Equal(suite.T(), http.StatusFound, resp.StatusCode)
	assert.Equal(suite.T(), "/expenses", resp.Header.Get("Location"))
	_, body := suite.get(bob, "/expenses")
	assert.Contains(suite.T(), body, "You are not authorized to edit this expense.")

	suite.post(bob, "/edit-expense/"+path, url.Values{"amount": {"1"}})
	suite.post(bob, "/delete-expense/"+path, nil)
	_, body = suite.get(bob, "/expenses")
	assert.Contains(suite.T(), body, "You are not authorized to delete this expense.")

	got, err := suite.db.GetExpense(suite.ctx, e.ID)
	require.NoError(suite.T(), err, "record still present")
	assert.True(suite.T(), decimal.NewFromInt(10).Equal(got.Amount), "record unchanged")

	for _, p := range []string{"/edit-expense/99999", "/edit-expense/abc"} {
		resp, _ = suite.get(bob, p)
		require.Equal(suite.T(), http.StatusFound, resp.StatusCode, p)
		_, body = suite.get(bob, "/expenses")
		assert.Contains(suite.T(), body, "Expense not found.", p)
	}
}

func (suite *HandlersTestSuite) TestDeleteExpense() {
	user := suite.createVerified("alice")
	e, err := suite.ledger.Add(suite.ctx, user.ID, ledger.Input{Amount: "10"})
	require.NoError(suite.T(), err)
	c := suite.loginAs("alice")

	resp, _ := suite.post(c, "/delete-expense/"+itoa(e.ID), nil)
	require.Equal(suite.T(), http.StatusFound, resp.StatusCode)
	_, body := suite.get(c, "/expenses")
	assert.Contains(suite.T(), body, "Expense deleted successfully.")

	_, err = suite.db.GetExpense(suite.ctx, e.ID)
	assert.ErrorIs(suite.T(), err, models.ErrNotFound)
}

func (suite *HandlersTestSuite) TestDashboardTotals() {
	user := suite.createVerified("alice")
	for _, in := range []ledger.Input{
		{Amount: "10", Category: "Food", Date: "2024-03-01"},
		{Amount: "5", Category: "Food", Date: "2024-03-02"},
		{Amount: "3", Category: "Transport", Date: "2024-04-01"},
	} {
		_, err := suite.ledger.Add(suite.ctx, user.ID, in)
		require.NoError(suite.T(), err)
	}
	c := suite.loginAs("alice")

	resp, body := suite.get(c, "/dashboard")
	require.Equal(suite.T(), http.StatusOK, resp.StatusCode)
	assert.Contains(suite.T(), body, "18.00")
	assert.Contains(suite.T(), body, `"Food":15`)
	assert.Contains(suite.T(), body, `"Transport":3`)
	assert.NotContains(suite.T(), body, "No Data")

	_, body = suite.get(c, "/dashboard?month=2024-03")
	assert.Contains(suite.T(), body, "March 2024")
	assert.Contains(suite.T(), body, "15.00")
	assert.NotContains(suite.T(), body, `"Transport"`)
}

func (suite *HandlersTestSuite) TestFlashShownOnce() {
	suite.createVerified("alice")
	c := suite.loginAs("alice")

	_, body := suite.get(c, "/dashboard")
	assert.Contains(suite.T(), body, "Logged in successfully.")
	_, body = suite.get(c, "/dashboard")
	assert.NotContains(suite.T(), body, "Logged in successfully.")
}

func (suite *HandlersTestSuite) TestAuthRateLimit() {
	r := chi.NewRouter()
	suite.handlers.Register(r, middleware.AuthRateLimiter().Middleware)
	srv := httptest.NewServer(r)
	defer srv.Close()

	c := suite.client()
	var last int
	for range 6 {
		resp, err := c.PostForm(srv.URL+"/login", url.Values{"username": {"x"}, "password": {"y"}})
		require.NoError(suite.T(), err)
		resp.Body.Close()
		last = resp.StatusCode
	}
	assert.Equal(suite.T(), http.StatusTooManyRequests, last)
}

func TestHandlersSuite(t *testing.T) {
	suite.Run(t, new(HandlersTestSuite))
}

func TestChartData(t *testing.T) {
	assert.Equal(t, map[string]float64{"No Data": 0}, chartData(ledger.Summarize(nil)))

	s := ledger.Summarize([]models.Expense{
		{Amount: decimal.RequireFromString("10.5"), Category: "Food"},
		{Amount: decimal.RequireFromString("2"), Category: "Bus"},
	})
	assert.Equal(t, map[string]float64{"Food": 10.5, "Bus": 2}, chartData(s))
}

func TestGetCategoryStyle(t *testing.T) {
	assert.Equal(t, "🍽️", getCategoryStyle(" food ").Icon)
	assert.Equal(t, "📦", getCategoryStyle("Llamas").Icon)
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
