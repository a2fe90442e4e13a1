package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	_ "github.com/joho/godotenv/autoload"
)

const (
	defaultAPIBase = "http://localhost:8080"
)

var (
	apiBase    string
	token      string
	client     = &http.Client{Timeout: 30 * time.Second}
	testDate   string
	createdIDs = make(map[string]string) // созданные ресурсы, удаляются в конце
)

func main() {
	fmt.Println("=== Meal Planner E2E Smoke Test ===")
	fmt.Println()

	apiBase = getEnv("API_BASE_URL", defaultAPIBase)
	token = getEnv("SMOKE_TOKEN", "")

	fmt.Printf("API Base: %s\n", apiBase)
	fmt.Printf("Token: %s\n", maskString(token))
	fmt.Println()

	testDate = time.Now().Format("2006-01-02")

	steps := []struct {
		name string
		fn   func() error
	}{
		{"Healthz", testHealthz},
		{"Sign In", testSignIn},
		{"Create Recipe", testCreateRecipe},
		{"Add Meal", testAddMeal},
		{"Get Week", testGetWeek},
		{"Flat Grocery List", testFlatGroceryList},
		{"Generate Grocery List", testGenerateGroceryList},
		{"Check All Items", testCheckAll},
		{"Create Export (CSV)", testCreateExport},
		{"Download Export", testDownloadExport},
		{"Delete Export", testDeleteExport},
		{"Delete Grocery List", testDeleteGroceryList},
		{"Remove Meal", testRemoveMeal},
		{"Delete Recipe", testDeleteRecipe},
	}

	failed := false
	for i, step := range steps {
		fmt.Printf("[%d/%d] %s... ", i+1, len(steps), step.name)
		if err := step.fn(); err != nil {
			fmt.Printf("FAILED\n")
			fmt.Printf("  Error: %v\n\n", err)
			failed = true
			break
		}
		fmt.Printf("OK\n")
	}

	fmt.Println()
	if failed {
		fmt.Println("SMOKE TEST FAILED")
		os.Exit(1)
	}
	fmt.Println("ALL SMOKE TESTS PASSED")
}

// doJSON отправляет запрос и декодирует ответ в out, если он не nil
func doJSON(method, path string, payload any, wantStatus int, out any) error {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequest(method, apiBase+path, body)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	addAuth(req)

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != wantStatus {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("status=%d body=%s", resp.StatusCode, string(b))
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode failed: %w", err)
		}
	}
	return nil
}

func testHealthz() error {
	var result struct {
		Status  string `json:"status"`
		Storage string `json:"storage"`
	}
	if err := doJSON("GET", "/healthz", nil, http.StatusOK, &result); err != nil {
		return err
	}
	if result.Status != "ok" {
		return fmt.Errorf("unexpected status %q", result.Status)
	}
	return nil
}

// testSignIn uses SMOKE_TOKEN when given, otherwise the dev sign-in
// or a throwaway registration when SMOKE_REGISTER=1.
func testSignIn() error {
	if token != "" {
		return nil
	}

	var result struct {
		AccessToken string `json:"access_token"`
	}
	if getEnv("SMOKE_REGISTER", "") == "1" {
		suffix := time.Now().Format("20060102150405")
		payload := map[string]string{
			"email":    "smoke-" + suffix + "@example.com",
			"username": "smoke_" + suffix,
			"password": "smoke-password",
		}
		if err := doJSON("POST", "/v1/auth/register", payload, http.StatusCreated, &result); err != nil {
			return err
		}
	} else if err := doJSON("POST", "/v1/auth/dev", nil, http.StatusOK, &result); err != nil {
		return err
	}

	if result.AccessToken == "" {
		return fmt.Errorf("empty access token")
	}
	token = result.AccessToken
	return nil
}

func testCreateRecipe() error {
	payload := map[string]any{
		"title":       "Smoke Test Pancakes",
		"ingredients": []string{"2 cups flour", "1 cup milk", "2 eggs"},
		"category":    "Breakfast",
		"servings":    2,
		"is_public":   false,
	}
	var result struct {
		ID string `json:"id"`
	}
	if err := doJSON("POST", "/v1/recipes", payload, http.StatusCreated, &result); err != nil {
		return err
	}
	createdIDs["recipe"] = result.ID
	return nil
}

func testAddMeal() error {
	payload := map[string]any{
		"date":      testDate,
		"meal_type": "Breakfast",
		"recipe_id": createdIDs["recipe"],
		"servings":  2,
	}
	var result struct {
		Message  string `json:"message"`
		MealPlan struct {
			ID string `json:"id"`
		} `json:"meal_plan"`
	}
	if err := doJSON("POST", "/v1/meal-plans/meals", payload, http.StatusCreated, &result); err != nil {
		return err
	}
	createdIDs["meal_plan"] = result.MealPlan.ID
	return nil
}

func testGetWeek() error {
	var result struct {
		MealPlan struct {
			ID    string `json:"id"`
			Meals []struct {
				Date string `json:"date"`
			} `json:"meals"`
		} `json:"meal_plan"`
	}
	if err := doJSON("GET", "/v1/meal-plans/week?date="+testDate, nil, http.StatusOK, &result); err != nil {
		return err
	}
	if result.MealPlan.ID != createdIDs["meal_plan"] {
		return fmt.Errorf("expected plan %s, got %s", createdIDs["meal_plan"], result.MealPlan.ID)
	}
	if len(result.MealPlan.Meals) == 0 {
		return fmt.Errorf("week has no meals")
	}
	return nil
}

func testFlatGroceryList() error {
	var result struct {
		Items   []string `json:"items"`
		IsEmpty bool     `json:"is_empty"`
	}
	path := fmt.Sprintf("/v1/meal-plans/grocery-list?start=%s&end=%s", testDate, testDate)
	if err := doJSON("GET", path, nil, http.StatusOK, &result); err != nil {
		return err
	}
	if result.IsEmpty || len(result.Items) < 3 {
		return fmt.Errorf("expected at least 3 items, got %v", result.Items)
	}
	return nil
}

func testGenerateGroceryList() error {
	var result struct {
		ID    string `json:"id"`
		Items []struct {
			ID string `json:"id"`
		} `json:"items"`
	}
	payload := map[string]string{"meal_plan_id": createdIDs["meal_plan"]}
	if err := doJSON("POST", "/v1/grocery-lists/generate", payload, http.StatusCreated, &result); err != nil {
		return err
	}
	if len(result.Items) == 0 {
		return fmt.Errorf("generated list is empty")
	}
	createdIDs["grocery_list"] = result.ID
	return nil
}

func testCheckAll() error {
	var result struct {
		Items []struct {
			IsChecked bool `json:"is_checked"`
		} `json:"items"`
	}
	path := "/v1/grocery-lists/" + createdIDs["grocery_list"] + "/check-all"
	if err := doJSON("PUT", path, map[string]bool{"checked": true}, http.StatusOK, &result); err != nil {
		return err
	}
	for _, it := range result.Items {
		if !it.IsChecked {
			return fmt.Errorf("item left unchecked")
		}
	}
	return nil
}

func testCreateExport() error {
	payload := map[string]string{
		"format": "csv",
		"start":  testDate,
		"end":    testDate,
	}
	var result struct {
		ID        string `json:"id"`
		SizeBytes int64  `json:"size_bytes"`
	}
	if err := doJSON("POST", "/v1/grocery-exports", payload, http.StatusCreated, &result); err != nil {
		return err
	}
	if result.SizeBytes < 10 {
		return fmt.Errorf("export size is %d bytes (too small)", result.SizeBytes)
	}
	createdIDs["export"] = result.ID
	return nil
}

func testDownloadExport() error {
	exportID := createdIDs["export"]
	if exportID == "" {
		return fmt.Errorf("no export ID to download")
	}

	req, err := http.NewRequest("GET", fmt.Sprintf("%s/v1/grocery-exports/%s/download", apiBase, exportID), nil)
	if err != nil {
		return err
	}
	addAuth(req)

	// редиректы проверяем вручную: 200 в local режиме, 302 при S3
	prev := client.CheckRedirect
	client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		return http.ErrUseLastResponse
	}
	defer func() { client.CheckRedirect = prev }()

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return checkExportBody(resp.Body)
	case http.StatusFound:
		location := resp.Header.Get("Location")
		if location == "" {
			return fmt.Errorf("redirect without Location header")
		}
		getResp, err := client.Get(location)
		if err != nil {
			return fmt.Errorf("failed to follow redirect: %w", err)
		}
		defer getResp.Body.Close()
		if getResp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(getResp.Body, 4096))
			return fmt.Errorf("redirect failed: status=%d body=%s", getResp.StatusCode, string(body))
		}
		return checkExportBody(getResp.Body)
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("unexpected status=%d body=%s", resp.StatusCode, string(body))
	}
}

func checkExportBody(r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read body: %w", err)
	}
	if !bytes.HasPrefix(data, []byte("item,count\n")) {
		return fmt.Errorf("unexpected export body %q", string(data))
	}
	return nil
}

func testDeleteExport() error {
	return doJSON("DELETE", "/v1/grocery-exports/"+createdIDs["export"], nil, http.StatusNoContent, nil)
}

func testDeleteGroceryList() error {
	return doJSON("DELETE", "/v1/grocery-lists/"+createdIDs["grocery_list"], nil, http.StatusNoContent, nil)
}

func testRemoveMeal() error {
	path := fmt.Sprintf("/v1/meal-plans/meals?date=%s&meal_type=Breakfast", testDate)
	return doJSON("DELETE", path, nil, http.StatusOK, nil)
}

func testDeleteRecipe() error {
	return doJSON("DELETE", "/v1/recipes/"+createdIDs["recipe"], nil, http.StatusNoContent, nil)
}

// Helper functions

func addAuth(req *http.Request) {
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func maskString(s string) string {
	if s == "" {
		return "(not set)"
	}
	if len(s) <= 8 {
		return "***"
	}
	return s[:4] + "..." + s[len(s)-4:]
}
