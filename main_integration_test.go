package main_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/exec"
	"syscall"
	"testing"
	"time"

	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	testAppBinary         = "./moomarket_test_app"
	testAppPort           = "8089"
	testServiceApiPortApi = "8091"
	testServiceApiPortBg  = "8092"
	testAppURL            = "http://localhost:" + testAppPort
	testServiceApiURL     = "http://localhost:" + testServiceApiPortApi
	startupTimeout        = 15 * time.Second
	pingEndpoint          = testAppURL + "/v1/ping"
)

var testMongoDbName = fmt.Sprintf("moomarket_integration_%d", time.Now().Unix())

func testEnv(serviceApiPort string) []string {
	mongoURI := os.Getenv("MONGO_URI")
	if mongoURI == "" {
		mongoURI = "mongodb://localhost:27017"
	}
	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}
	return append(os.Environ(),
		"API_PORT="+testAppPort,
		"SERVICE_API_PORT="+serviceApiPort,
		"MONGO_URI="+mongoURI,
		"MONGO_DB_NAME="+testMongoDbName,
		"REDIS_ADDR="+redisAddr,
		"JWT_SECRET=integration-test-secret",
		"GIN_MODE=release",
		"MOCK_SERVICES=true",
		"SMTP_FROM_ADDRESS=test@moomarket.example",
		"RATE_LIMIT_SOFT_BUCKET_SIZE=1000",
		"RATE_LIMIT_SOFT_REFILL_RATE=100",
		"RATE_LIMIT_HARD_BUCKET_SIZE=2000",
		"RATE_LIMIT_HARD_REFILL_RATE=200",
	)
}

func dropTestDatabase() {
	mongoURI := os.Getenv("MONGO_URI")
	if mongoURI == "" {
		mongoURI = "mongodb://localhost:27017"
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(mongoURI))
	if err != nil {
		log.Printf("Teardown: failed to connect to Mongo for cleanup: %v", err)
		return
	}
	defer client.Disconnect(ctx)
	if err := client.Database(testMongoDbName).Drop(ctx); err != nil {
		log.Printf("Teardown: failed to drop test database %s: %v", testMongoDbName, err)
	}
}

// TestMain builds the binary and runs one API process and one background
// worker process against a throwaway database.
func TestMain(m *testing.M) {
	defer func() {
		_ = os.Remove(testAppBinary)
	}()

	godotenv.Load()

	log.Println("Integration setup: building application...")
	buildCmd := exec.Command("go", "build", "-o", testAppBinary, ".")
	if out, err := buildCmd.CombinedOutput(); err != nil {
		log.Printf("Failed to build application: %v\n%s", err, out)
		os.Exit(1)
	}

	defer dropTestDatabase()

	apiCmd := exec.Command(testAppBinary, "-m", "api")
	apiCmd.Env = testEnv(testServiceApiPortApi)
	apiCmd.Stdout = os.Stdout
	apiCmd.Stderr = os.Stderr
	if err := apiCmd.Start(); err != nil {
		log.Printf("Failed to start API process: %v", err)
		os.Exit(1)
	}

	bgCmd := exec.Command(testAppBinary, "-m", "bg")
	bgCmd.Env = testEnv(testServiceApiPortBg)
	bgCmd.Stdout = os.Stdout
	bgCmd.Stderr = os.Stderr
	if err := bgCmd.Start(); err != nil {
		_ = apiCmd.Process.Kill()
		log.Printf("Failed to start background worker process: %v", err)
		os.Exit(1)
	}

	defer func() {
		for _, cmd := range []*exec.Cmd{bgCmd, apiCmd} {
			if err := cmd.Process.Signal(syscall.SIGTERM); err != nil {
				_ = cmd.Process.Kill()
				continue
			}
			_, _ = cmd.Process.Wait()
		}
	}()

	ready := false
	deadline := time.Now().Add(startupTimeout)
	for time.Now().Before(deadline) {
		resp, err := http.Get(pingEndpoint)
		if err == nil {
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK && string(body) == "pong" {
				ready = true
				break
			}
		}
		time.Sleep(200 * time.Millisecond)
	}
	if !ready {
		log.Printf("Application failed to become ready within %v", startupTimeout)
		os.Exit(1)
	}

	// Give the background worker a moment to register its handlers.
	time.Sleep(2 * time.Second)

	m.Run()
}

// doJSON issues a request against the running API and decodes the JSON body.
func doJSON(t *testing.T, method, path, token string, payload interface{}) (int, map[string]interface{}) {
	t.Helper()

	var bodyReader io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		require.NoError(t, err)
		bodyReader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, testAppURL+path, bodyReader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var respBody map[string]interface{}
	if len(respBytes) > 0 {
		if err := json.Unmarshal(respBytes, &respBody); err != nil {
			respBody = map[string]interface{}{"raw_body": string(respBytes)}
		}
	}
	return resp.StatusCode, respBody
}

// registerAndLogin creates a fresh account and returns its id and JWT.
func registerAndLogin(t *testing.T, role string) (userID, token, email string) {
	t.Helper()
	email = fmt.Sprintf("it_%s_%d@example.com", role, time.Now().UnixNano())
	password := "longenoughpass"

	status, _ := doJSON(t, "POST", "/v1/user/register", "", map[string]interface{}{
		"email":    email,
		"password": password,
		"name":     "Integration " + role,
		"role":     role,
		"county":   "Nakuru",
	})
	require.Equal(t, http.StatusCreated, status, "register %s", role)

	status, body := doJSON(t, "POST", "/v1/user/login", "", map[string]interface{}{
		"email":    email,
		"password": password,
	})
	require.Equal(t, http.StatusOK, status, "login %s", role)
	token, _ = body["token"].(string)
	require.NotEmpty(t, token)
	user, ok := body["user"].(map[string]interface{})
	require.True(t, ok, "login response should include the user")
	userID, _ = user["id"].(string)
	require.NotEmpty(t, userID)
	return userID, token, email
}

// getTestEmail fetches a captured mock email via the Service API.
func getTestEmail(t *testing.T, category, email string) map[string]interface{} {
	t.Helper()
	payload := map[string]interface{}{
		"method":    "getTestEmail",
		"arguments": []string{category, email},
	}
	data, err := json.Marshal(payload)
	require.NoError(t, err)

	resp, err := http.Post(testServiceApiURL+"/api", "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode, "getTestEmail %s for %s", category, email)

	var respBody struct {
		Success bool                   `json:"success"`
		Data    map[string]interface{} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&respBody))
	require.True(t, respBody.Success)
	return respBody.Data
}

func TestIntegration_Ping(t *testing.T) {
	resp, err := http.Get(pingEndpoint)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "pong", string(body))
}

func TestIntegration_AuthRequired(t *testing.T) {
	status, _ := doJSON(t, "GET", "/v1/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
}

// TestIntegration_ViewingFlow walks the whole lifecycle end to end: listing
// creation and publication, a viewing request, the confirmation emails,
// unread counts, completion and feedback.
func TestIntegration_ViewingFlow(t *testing.T) {
	sellerID, sellerToken, sellerEmail := registerAndLogin(t, "seller")
	_, buyerToken, buyerEmail := registerAndLogin(t, "buyer")

	// Seller creates and publishes a listing.
	status, listing := doJSON(t, "POST", "/v1/listing", sellerToken, map[string]interface{}{
		"title":       "Boran bull, integration",
		"description": "Grass fed, ready for market.",
		"breed":       "Boran",
		"sex":         "bull",
		"age_months":  48,
		"weight_kg":   520,
		"price_kes":   210000,
		"county":      "Laikipia",
	})
	require.Equal(t, http.StatusCreated, status)
	listingID, _ := listing["id"].(string)
	require.NotEmpty(t, listingID)
	assert.Equal(t, true, listing["is_draft"])

	status, _ = doJSON(t, "POST", "/v1/listing/"+listingID+"/publish", sellerToken, nil)
	require.Equal(t, http.StatusOK, status)

	// Buyer requests a viewing.
	viewingDate := time.Now().AddDate(0, 0, 4).Format("2006-01-02")
	status, created := doJSON(t, "POST", "/v1/inspection", buyerToken, map[string]interface{}{
		"listing_id": listingID,
		"date":       viewingDate,
	})
	require.Equal(t, http.StatusCreated, status)
	requestID, _ := created["id"].(string)
	require.NotEmpty(t, requestID)
	assert.Equal(t, "pending", created["status"])

	// The seller is emailed about the new request.
	emailData := getTestEmail(t, "inspection_requested", sellerEmail)
	assert.Contains(t, emailData["subject"], "viewing request")

	// The pending request demands the seller's attention.
	status, unread := doJSON(t, "GET", "/v1/me/notifications/unread", sellerToken, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(1), unread["count"])

	// Seller confirms; buyer is emailed and the seller's count clears.
	status, confirmed := doJSON(t, "POST", "/v1/inspection/"+requestID+"/confirm", sellerToken, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "confirmed", confirmed["status"])

	emailData = getTestEmail(t, "inspection_confirmed", buyerEmail)
	assert.Contains(t, emailData["subject"], "confirmed")

	status, unread = doJSON(t, "GET", "/v1/me/notifications/unread", sellerToken, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(0), unread["count"])

	// Both parties see the confirmed viewing in their notification feeds.
	status, _ = doJSON(t, "GET", "/v1/me/notifications", buyerToken, nil)
	require.Equal(t, http.StatusOK, status)

	// Seller marks the viewing completed and the buyer leaves feedback.
	status, completed := doJSON(t, "POST", "/v1/inspection/"+requestID+"/complete", sellerToken, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "completed", completed["status"])

	status, _ = doJSON(t, "POST", "/v1/listing/"+listingID+"/feedback", buyerToken, map[string]interface{}{
		"rating":  5,
		"comment": "Healthy animal, straightforward seller.",
	})
	require.Equal(t, http.StatusCreated, status)

	// The rating shows up on the seller's public profile.
	status, profile := doJSON(t, "GET", "/v1/user/"+sellerID, "", nil)
	require.Equal(t, http.StatusOK, status)
	rating, ok := profile["rating"].(map[string]interface{})
	require.True(t, ok, "profile should include a rating block")
	assert.Equal(t, float64(5), rating["average"])
	assert.Equal(t, float64(1), rating["count"])
}

// TestIntegration_RescheduleFlow exercises the proposal loop over HTTP.
func TestIntegration_RescheduleFlow(t *testing.T) {
	_, sellerToken, _ := registerAndLogin(t, "seller")
	_, buyerToken, _ := registerAndLogin(t, "buyer")

	status, listing := doJSON(t, "POST", "/v1/listing", sellerToken, map[string]interface{}{
		"title":      "Friesian heifer, integration",
		"breed":      "Friesian",
		"sex":        "heifer",
		"age_months": 20,
		"weight_kg":  310,
		"price_kes":  145000,
		"county":     "Nyandarua",
	})
	require.Equal(t, http.StatusCreated, status)
	listingID, _ := listing["id"].(string)
	status, _ = doJSON(t, "POST", "/v1/listing/"+listingID+"/publish", sellerToken, nil)
	require.Equal(t, http.StatusOK, status)

	status, created := doJSON(t, "POST", "/v1/inspection", buyerToken, map[string]interface{}{
		"listing_id": listingID,
		"date":       time.Now().AddDate(0, 0, 3).Format("2006-01-02"),
	})
	require.Equal(t, http.StatusCreated, status)
	requestID, _ := created["id"].(string)

	// Seller proposes a different date instead of confirming.
	newDate := time.Now().AddDate(0, 0, 6).Format("2006-01-02")
	status, proposed := doJSON(t, "POST", "/v1/inspection/"+requestID+"/propose", sellerToken, map[string]interface{}{
		"date": newDate,
	})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "pending", proposed["status"])
	assert.Equal(t, "seller", proposed["rescheduled_by"])

	// The seller cannot accept their own proposal.
	status, _ = doJSON(t, "POST", "/v1/inspection/"+requestID+"/accept", sellerToken, nil)
	assert.Equal(t, http.StatusBadRequest, status)

	// Buyer accepts; the request returns to a clean pending state.
	status, accepted := doJSON(t, "POST", "/v1/inspection/"+requestID+"/accept", buyerToken, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "pending", accepted["status"])
	assert.Empty(t, accepted["rescheduled_by"])

	// Now the seller confirms the agreed date.
	status, confirmed := doJSON(t, "POST", "/v1/inspection/"+requestID+"/confirm", sellerToken, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "confirmed", confirmed["status"])

	// A stranger cannot read the request.
	_, strangerToken, _ := registerAndLogin(t, "buyer")
	status, _ = doJSON(t, "GET", "/v1/inspection/"+requestID, strangerToken, nil)
	assert.Equal(t, http.StatusNotFound, status)
}
