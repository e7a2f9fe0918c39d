package main

import (
	"bytes"
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"atm-service/internal/config"
	"atm-service/internal/server"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"golang.org/x/crypto/bcrypt"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

type IntegrationTestSuite struct {
	suite.Suite
	postgresContainer *tcpostgres.PostgresContainer
	serverInstance    *server.Server
	serverPort        string
	baseURL           string
	client            *http.Client
	dbConnStr         string
	db                *sql.DB
}

func (suite *IntegrationTestSuite) SetupSuite() {
	ctx := context.Background()

	postgresContainer, err := tcpostgres.Run(ctx,
		"postgres:15-alpine",
		tcpostgres.WithDatabase("atm"),
		tcpostgres.WithUsername("postgres"),
		tcpostgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		suite.T().Fatalf("Failed to start postgres container: %s", err)
	}
	suite.postgresContainer = postgresContainer

	suite.dbConnStr, err = postgresContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		suite.T().Fatalf("Failed to get connection string: %s", err)
	}

	// Run migrations
	if err := suite.runMigrations(); err != nil {
		suite.T().Fatalf("Failed to run migrations: %s", err)
	}

	// Keep a connection open for seeding accounts
	suite.db, err = sql.Open("postgres", suite.dbConnStr)
	if err != nil {
		suite.T().Fatalf("Failed to open database: %s", err)
	}

	// Start the application server
	if err := suite.startApplicationServer(); err != nil {
		suite.T().Fatalf("Failed to start application server: %s", err)
	}

	suite.client = &http.Client{
		Timeout: 30 * time.Second,
	}
}

func (suite *IntegrationTestSuite) runMigrations() error {
	// Create database connection
	db, err := sql.Open("postgres", suite.dbConnStr)
	if err != nil {
		return err
	}
	defer db.Close()

	// Read migration files from embedded filesystem
	migrationFiles, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("failed to read migrations directory: %w", err)
	}

	// Sort migration files by name (version)
	sort.Slice(migrationFiles, func(i, j int) bool {
		return migrationFiles[i].Name() < migrationFiles[j].Name()
	})

	// Execute migrations in order
	for _, file := range migrationFiles {
		if strings.HasSuffix(file.Name(), ".sql") {
			migrationPath := filepath.Join("migrations", file.Name())
			migrationSQL, err := migrationsFS.ReadFile(migrationPath)
			if err != nil {
				return fmt.Errorf("failed to read migration file %s: %w", file.Name(), err)
			}

			if _, err := db.Exec(string(migrationSQL)); err != nil {
				return fmt.Errorf("failed to execute migration %s: %w", file.Name(), err)
			}
		}
	}

	return nil
}

func (suite *IntegrationTestSuite) startApplicationServer() error {
	ctx := context.Background()

	host, err := suite.postgresContainer.Host(ctx)
	if err != nil {
		return err
	}

	mappedPort, err := suite.postgresContainer.MappedPort(ctx, "5432")
	if err != nil {
		return err
	}

	cfg := &config.Config{
		DBHost:     host,
		DBPort:     mappedPort.Port(),
		DBUser:     "postgres",
		DBPassword: "password",
		DBName:     "atm",
		ServerPort: "0", // Let OS choose a free port
	}

	// Start server
	serverInstance, port, err := server.StartServer(cfg)
	if err != nil {
		return err
	}

	suite.serverInstance = serverInstance
	suite.serverPort = port
	suite.baseURL = "http://localhost:" + port

	// Wait for server to be ready
	return suite.waitForServerReady()
}

func (suite *IntegrationTestSuite) waitForServerReady() error {
	timeout := 30 * time.Second
	start := time.Now()

	for time.Since(start) < timeout {
		resp, err := http.Get(suite.baseURL + "/health")
		if err == nil && resp.StatusCode == http.StatusOK {
			resp.Body.Close()
			return nil
		}
		if resp != nil {
			resp.Body.Close()
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("server not ready after %v", timeout)
}

func (suite *IntegrationTestSuite) TearDownSuite() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if suite.serverInstance != nil {
		suite.serverInstance.Stop(ctx)
	}

	if suite.db != nil {
		suite.db.Close()
	}

	if suite.postgresContainer != nil {
		suite.postgresContainer.Terminate(ctx)
	}
}

// seedAccount inserts an account directly, the way cmd/seed does.
func (suite *IntegrationTestSuite) seedAccount(cardNumber, pin string, balanceCents int64) int64 {
	pinHash, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.MinCost)
	if err != nil {
		suite.T().Fatalf("Failed to hash PIN: %s", err)
	}

	var id int64
	err = suite.db.QueryRow(`
		INSERT INTO accounts (card_number, pin_hash, balance_cents, created_at, updated_at)
		VALUES ($1, $2, $3, now(), now())
		RETURNING id`,
		cardNumber, string(pinHash), balanceCents,
	).Scan(&id)
	if err != nil {
		suite.T().Fatalf("Failed to seed account: %s", err)
	}
	return id
}

// Helper methods for API calls with better error handling
func (suite *IntegrationTestSuite) resolveAccount(cardNumber, pin string) (*http.Response, string, error) {
	reqBody := map[string]interface{}{
		"card_number": cardNumber,
		"pin":         pin,
	}
	body, _ := json.Marshal(reqBody)

	resp, err := suite.client.Post(suite.baseURL+"/auth/resolve", "application/json", bytes.NewReader(body))
	if err != nil {
		return resp, "", err
	}

	respBody, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	newResp := &http.Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
	}

	return newResp, string(respBody), nil
}

func (suite *IntegrationTestSuite) applyTransaction(accountID int64, txType, amount string, idempotencyKey ...string) (*http.Response, string, error) {
	reqBody := map[string]interface{}{
		"type":   txType,
		"amount": amount,
	}

	if len(idempotencyKey) > 0 && idempotencyKey[0] != "" {
		reqBody["idempotency_key"] = idempotencyKey[0]
	}

	body, _ := json.Marshal(reqBody)

	resp, err := suite.client.Post(
		fmt.Sprintf("%s/accounts/%d/transactions", suite.baseURL, accountID),
		"application/json", bytes.NewReader(body))
	if err != nil {
		return resp, "", err
	}

	respBody, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	newResp := &http.Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
	}

	return newResp, string(respBody), nil
}

func (suite *IntegrationTestSuite) getBalance(accountID int64) (*http.Response, string, error) {
	resp, err := suite.client.Get(fmt.Sprintf("%s/accounts/%d/balance", suite.baseURL, accountID))
	if err != nil {
		return resp, "", err
	}

	respBody, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	newResp := &http.Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
	}

	return newResp, string(respBody), nil
}

func (suite *IntegrationTestSuite) getHistory(accountID int64, limit int) (*http.Response, string, error) {
	url := fmt.Sprintf("%s/accounts/%d/transactions", suite.baseURL, accountID)
	if limit > 0 {
		url = fmt.Sprintf("%s?limit=%d", url, limit)
	}

	resp, err := suite.client.Get(url)
	if err != nil {
		return resp, "", err
	}

	respBody, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	newResp := &http.Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
	}

	return newResp, string(respBody), nil
}

// Helper to parse response and log errors
func (suite *IntegrationTestSuite) parseResponse(body string) (map[string]interface{}, error) {
	var response map[string]interface{}
	if err := json.Unmarshal([]byte(body), &response); err != nil {
		suite.T().Logf("Failed to parse response: %s", body)
		return nil, err
	}
	return response, nil
}

func (suite *IntegrationTestSuite) historyEntries(body string) []map[string]interface{} {
	response, err := suite.parseResponse(body)
	assert.NoError(suite.T(), err)

	data, hasData := response["data"]
	assert.True(suite.T(), hasData, "Response should have 'data' field")
	if !hasData {
		return nil
	}

	raw := data.([]interface{})
	entries := make([]map[string]interface{}, 0, len(raw))
	for _, e := range raw {
		entries = append(entries, e.(map[string]interface{}))
	}
	return entries
}

// Helper to compare decimal values properly
func (suite *IntegrationTestSuite) assertDecimalEqual(expected, actual string, msgAndArgs ...interface{}) {
	expectedDec, err := decimal.NewFromString(expected)
	if err != nil {
		suite.T().Fatalf("Invalid expected decimal: %s", expected)
	}

	actualDec, err := decimal.NewFromString(actual)
	if err != nil {
		suite.T().Fatalf("Invalid actual decimal: %s", actual)
	}

	assert.True(suite.T(), expectedDec.Equal(actualDec),
		"Decimal values not equal: expected %s, got %s", expected, actual)
}

func (suite *IntegrationTestSuite) assertBalance(accountID int64, expected string) {
	_, body, err := suite.getBalance(accountID)
	assert.NoError(suite.T(), err)

	response, err := suite.parseResponse(body)
	assert.NoError(suite.T(), err)

	data, hasData := response["data"]
	assert.True(suite.T(), hasData, "Response should have 'data' field")
	if hasData {
		accountData := data.(map[string]interface{})
		suite.assertDecimalEqual(expected, accountData["balance"].(string))
	}
}

func (suite *IntegrationTestSuite) assertErrorCode(body, expectedCode string) {
	response, err := suite.parseResponse(body)
	assert.NoError(suite.T(), err)

	errorData, hasError := response["error"]
	assert.True(suite.T(), hasError, "Response should have 'error' field for error cases")
	if hasError {
		errorInfo := errorData.(map[string]interface{})
		assert.Equal(suite.T(), expectedCode, errorInfo["code"])
	}
}

// ------------------------------------------------------------------
// Steps below are helpers (non-test methods). They will be executed
// in the order invoked by TestFlow. This allows deterministic ordering
// without relying on test function name prefixes.
// ------------------------------------------------------------------

func (suite *IntegrationTestSuite) stepHealthCheck() {
	resp, err := suite.client.Get(suite.baseURL + "/health")
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), http.StatusOK, resp.StatusCode)

	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	var healthResp map[string]interface{}
	err = json.Unmarshal(body, &healthResp)
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), "healthy", healthResp["status"])
}

func (suite *IntegrationTestSuite) stepResolveAccount(accountID int64) {
	resp, body, err := suite.resolveAccount("1111222233334444", "1234")
	assert.NoError(suite.T(), err)
	suite.T().Logf("Resolve Response: %s", body)
	assert.Equal(suite.T(), http.StatusOK, resp.StatusCode)

	response, err := suite.parseResponse(body)
	assert.NoError(suite.T(), err)

	data, hasData := response["data"]
	assert.True(suite.T(), hasData, "Response should have 'data' field")
	if hasData {
		authData := data.(map[string]interface{})
		assert.Equal(suite.T(), float64(accountID), authData["account_id"])
	}

	// Wrong PIN and unknown card both come back as auth_failure.
	resp, body, err = suite.resolveAccount("1111222233334444", "0000")
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), http.StatusUnauthorized, resp.StatusCode)
	suite.assertErrorCode(body, "auth_failure")

	resp, body, err = suite.resolveAccount("9999999999999999", "1234")
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), http.StatusUnauthorized, resp.StatusCode)
	suite.assertErrorCode(body, "auth_failure")
}

func (suite *IntegrationTestSuite) stepDeposit(accountID int64) {
	resp, body, err := suite.applyTransaction(accountID, "DEPOSIT", "150.00")
	assert.NoError(suite.T(), err)
	suite.T().Logf("Deposit Response: %s", body)
	assert.Equal(suite.T(), http.StatusCreated, resp.StatusCode)

	response, err := suite.parseResponse(body)
	assert.NoError(suite.T(), err)

	data, hasData := response["data"]
	assert.True(suite.T(), hasData, "Response should have 'data' field")
	if hasData {
		txData := data.(map[string]interface{})
		assert.Equal(suite.T(), "DEPOSIT", txData["type"])
		suite.assertDecimalEqual("650.00", txData["balance"].(string))
		assert.NotEmpty(suite.T(), txData["transaction_id"])
	}

	suite.assertBalance(accountID, "650.00")

	// Ledger has exactly one entry with balance_after 650.00
	resp, body, err = suite.getHistory(accountID, 0)
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), http.StatusOK, resp.StatusCode)

	entries := suite.historyEntries(body)
	assert.Len(suite.T(), entries, 1)
	if len(entries) == 1 {
		assert.Equal(suite.T(), "DEPOSIT", entries[0]["type"])
		suite.assertDecimalEqual("650.00", entries[0]["balance_after"].(string))
	}
}

func (suite *IntegrationTestSuite) stepFailedWithdrawal(accountID int64) {
	resp, body, err := suite.applyTransaction(accountID, "WITHDRAW", "700.00")
	assert.NoError(suite.T(), err)
	suite.T().Logf("Overdraft Response: %s", body)
	assert.Equal(suite.T(), http.StatusUnprocessableEntity, resp.StatusCode)
	suite.assertErrorCode(body, "insufficient_funds")

	// Balance unchanged, no ledger entry added
	suite.assertBalance(accountID, "650.00")

	_, body, err = suite.getHistory(accountID, 0)
	assert.NoError(suite.T(), err)
	assert.Len(suite.T(), suite.historyEntries(body), 1)
}

func (suite *IntegrationTestSuite) stepWithdrawAll(accountID int64) {
	resp, body, err := suite.applyTransaction(accountID, "WITHDRAW", "650.00")
	assert.NoError(suite.T(), err)
	suite.T().Logf("Withdraw Response: %s", body)
	assert.Equal(suite.T(), http.StatusCreated, resp.StatusCode)

	response, err := suite.parseResponse(body)
	assert.NoError(suite.T(), err)

	data, hasData := response["data"]
	if hasData {
		txData := data.(map[string]interface{})
		suite.assertDecimalEqual("0.00", txData["balance"].(string))
	}

	suite.assertBalance(accountID, "0.00")

	_, body, err = suite.getHistory(accountID, 0)
	assert.NoError(suite.T(), err)
	assert.Len(suite.T(), suite.historyEntries(body), 2)
}

func (suite *IntegrationTestSuite) stepIdempotentWithdrawal(accountID int64) {
	idempotencyKey := uuid.New().String()

	// First withdrawal
	resp, body, err := suite.applyTransaction(accountID, "WITHDRAW", "100.00", idempotencyKey)
	assert.NoError(suite.T(), err)
	suite.T().Logf("First Withdrawal Response: %s", body)
	assert.Equal(suite.T(), http.StatusCreated, resp.StatusCode)

	response, err := suite.parseResponse(body)
	assert.NoError(suite.T(), err)

	var firstTransactionID float64
	if data, hasData := response["data"]; hasData {
		txData := data.(map[string]interface{})
		firstTransactionID = txData["transaction_id"].(float64)
		assert.NotZero(suite.T(), firstTransactionID)
	}

	// Second withdrawal with same idempotency key replays the first result
	resp, body, err = suite.applyTransaction(accountID, "WITHDRAW", "100.00", idempotencyKey)
	assert.NoError(suite.T(), err)
	suite.T().Logf("Second Withdrawal Response: %s", body)
	assert.Equal(suite.T(), http.StatusCreated, resp.StatusCode)

	response, err = suite.parseResponse(body)
	assert.NoError(suite.T(), err)

	if data, hasData := response["data"]; hasData {
		txData := data.(map[string]interface{})
		assert.Equal(suite.T(), firstTransactionID, txData["transaction_id"])
	}

	// Balance only changed once: 400.00 - 100.00 = 300.00
	suite.assertBalance(accountID, "300.00")
}

func (suite *IntegrationTestSuite) stepInvalidAmounts(accountID int64) {
	for _, amount := range []string{"-100.00", "0.00", "10.005"} {
		resp, body, err := suite.applyTransaction(accountID, "DEPOSIT", amount)
		assert.NoError(suite.T(), err)
		suite.T().Logf("Invalid Amount (%s) Response: %s", amount, body)
		assert.Equal(suite.T(), http.StatusBadRequest, resp.StatusCode)
		suite.assertErrorCode(body, "invalid_amount")
	}

	resp, body, err := suite.applyTransaction(accountID, "TRANSFER", "10.00")
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), http.StatusBadRequest, resp.StatusCode)
	suite.assertErrorCode(body, "invalid_input")
}

func (suite *IntegrationTestSuite) stepAccountNotFound() {
	resp, body, err := suite.getBalance(999999)
	assert.NoError(suite.T(), err)
	suite.T().Logf("Account Not Found Response: %s", body)
	assert.Equal(suite.T(), http.StatusNotFound, resp.StatusCode)
	suite.assertErrorCode(body, "account_not_found")

	resp, body, err = suite.applyTransaction(999999, "DEPOSIT", "10.00")
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), http.StatusNotFound, resp.StatusCode)
	suite.assertErrorCode(body, "account_not_found")
}

func (suite *IntegrationTestSuite) stepHistoryOrderAndLimit(accountID int64) {
	for i := 0; i < 5; i++ {
		resp, _, err := suite.applyTransaction(accountID, "DEPOSIT", "1.00")
		assert.NoError(suite.T(), err)
		assert.Equal(suite.T(), http.StatusCreated, resp.StatusCode)
	}

	resp, body, err := suite.getHistory(accountID, 3)
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), http.StatusOK, resp.StatusCode)

	entries := suite.historyEntries(body)
	assert.Len(suite.T(), entries, 3)

	// Newest first; ids strictly descending breaks any timestamp ties.
	for i := 1; i < len(entries); i++ {
		assert.Greater(suite.T(), entries[i-1]["id"].(float64), entries[i]["id"].(float64))
	}
}

func (suite *IntegrationTestSuite) stepConcurrentWithdrawals() {
	// Fresh account with 500.00; two concurrent withdrawals of 300.00 must
	// serialize so exactly one succeeds.
	accountID := suite.seedAccount("5555666677778888", "4321", 50000)

	var wg sync.WaitGroup
	statuses := make([]int, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resp, _, err := suite.applyTransaction(accountID, "WITHDRAW", "300.00")
			if err == nil {
				statuses[i] = resp.StatusCode
			}
		}(i)
	}
	wg.Wait()

	created := 0
	rejected := 0
	for _, status := range statuses {
		switch status {
		case http.StatusCreated:
			created++
		case http.StatusUnprocessableEntity:
			rejected++
		}
	}
	assert.Equal(suite.T(), 1, created, "exactly one withdrawal must succeed")
	assert.Equal(suite.T(), 1, rejected, "the other must fail with insufficient funds")

	suite.assertBalance(accountID, "200.00")

	_, body, err := suite.getHistory(accountID, 0)
	assert.NoError(suite.T(), err)
	assert.Len(suite.T(), suite.historyEntries(body), 1)
}

func (suite *IntegrationTestSuite) TestFlow() {
	if testing.Short() {
		suite.T().Skip("Skipping integration test in short mode")
	}

	// The demo account from cmd/seed: card 1111222233334444, PIN 1234, 500.00
	accountID := suite.seedAccount("1111222233334444", "1234", 50000)
	secondID := suite.seedAccount("4444333322221111", "1234", 40000)

	suite.stepHealthCheck()
	suite.stepResolveAccount(accountID)
	suite.stepDeposit(accountID)
	suite.stepFailedWithdrawal(accountID)
	suite.stepWithdrawAll(accountID)
	suite.stepIdempotentWithdrawal(secondID)
	suite.stepInvalidAmounts(secondID)
	suite.stepAccountNotFound()
	suite.stepHistoryOrderAndLimit(secondID)
	suite.stepConcurrentWithdrawals()
}

func TestIntegrationTestSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	suite.Run(t, new(IntegrationTestSuite))
}
