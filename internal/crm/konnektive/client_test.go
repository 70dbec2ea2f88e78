package konnektive

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestQueryTransactionsPaginates(t *testing.T) {
	const total = 450 // 3 pages at 200/page

	var pagesServed []int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		q := r.URL.Query()
		if q.Get("loginId") == "" || q.Get("password") == "" {
			t.Error("credentials missing from query string")
		}

		page := 1
		fmt.Sscanf(q.Get("page"), "%d", &page)
		pagesServed = append(pagesServed, page)

		count := pageSize
		if page*pageSize > total {
			count = total - (page-1)*pageSize
		}
		rows := make([]Transaction, count)
		for i := range rows {
			rows[i] = Transaction{TransactionID: fmt.Sprintf("t-%d-%d", page, i), OrderID: "o1"}
		}

		data, _ := json.Marshal(rows)
		msg, _ := json.Marshal(map[string]interface{}{
			"page":         page,
			"totalResults": total,
			"data":         json.RawMessage(data),
		})
		json.NewEncoder(w).Encode(map[string]interface{}{
			"result":  "SUCCESS",
			"message": json.RawMessage(msg),
		})
	}))
	defer srv.Close()

	c := NewClient(Config{
		BaseURL:        srv.URL,
		LoginID:        "api-user",
		Password:       "api-pass",
		RequestTimeout: 5 * time.Second,
	}, nil, nil)

	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	txns, err := c.QueryTransactions(context.Background(), start, start)
	if err != nil {
		t.Fatalf("QueryTransactions: %v", err)
	}

	if len(txns) != total {
		t.Errorf("got %d transactions, want %d", len(txns), total)
	}
	if len(pagesServed) != 3 {
		t.Errorf("served pages %v, want exactly 3 pages", pagesServed)
	}
}

func TestQueryOrderNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		msg, _ := json.Marshal(map[string]interface{}{
			"page":         1,
			"totalResults": 0,
			"data":         []Order{},
		})
		json.NewEncoder(w).Encode(map[string]interface{}{
			"result":  "SUCCESS",
			"message": json.RawMessage(msg),
		})
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, RequestTimeout: 5 * time.Second}, nil, nil)

	order, err := c.QueryOrder(context.Background(), "no-such-order")
	if err != nil {
		t.Fatalf("QueryOrder: %v", err)
	}
	if order != nil {
		t.Errorf("got %+v, want nil for missing order", order)
	}
}

func TestQueryOrderAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"result":  "ERROR",
			"message": "bad credentials",
		})
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, RequestTimeout: 5 * time.Second}, nil, nil)

	if _, err := c.QueryOrder(context.Background(), "x"); err == nil {
		t.Fatal("expected error for ERROR result")
	}
}

func TestOpenItems(t *testing.T) {
	o := Order{Items: []Item{
		{Name: "Sildenafil", PurchaseID: "p1"},
		{Name: "Tadalafil", PurchaseID: "p2", Canceled: true},
		{Name: "Finasteride", PurchaseID: "p3"},
	}}

	open := o.OpenItems()
	if len(open) != 2 {
		t.Fatalf("got %d open items, want 2", len(open))
	}
	if open[0].PurchaseID != "p1" || open[1].PurchaseID != "p3" {
		t.Errorf("wrong items kept: %+v", open)
	}
}
