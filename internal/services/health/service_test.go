package health

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"
)

func TestStatusWithoutChecks(t *testing.T) {
	report := NewService().Status(context.Background())
	if !report.OK {
		t.Fatalf("expected ok")
	}
	if report.Checks != nil {
		t.Fatalf("expected no checks, got %v", report.Checks)
	}
}

func TestStatusReportsFailures(t *testing.T) {
	svc := NewService()
	svc.Register("db", func(context.Context) error { return nil })
	svc.Register("redis", func(context.Context) error { return errors.New("connection refused") })

	report := svc.Status(context.Background())
	if report.OK {
		t.Fatalf("expected not ok")
	}
	want := map[string]string{"db": "ok", "redis": "connection refused"}
	if !reflect.DeepEqual(report.Checks, want) {
		t.Fatalf("checks = %v, want %v", report.Checks, want)
	}
}

func TestStatusAppliesTimeout(t *testing.T) {
	svc := NewService()
	svc.Timeout = 20 * time.Millisecond
	svc.Register("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	start := time.Now()
	report := svc.Status(context.Background())
	if report.OK {
		t.Fatalf("expected not ok")
	}
	if time.Since(start) > time.Second {
		t.Fatalf("check ignored timeout")
	}
	if report.Checks["slow"] != context.DeadlineExceeded.Error() {
		t.Fatalf("slow = %q", report.Checks["slow"])
	}
}

func TestRegisterIgnoresNilAndSortsNames(t *testing.T) {
	svc := NewService()
	svc.Register("nats", func(context.Context) error { return nil })
	svc.Register("db", func(context.Context) error { return nil })
	svc.Register("nil", nil)

	if got := svc.Names(); !reflect.DeepEqual(got, []string{"db", "nats"}) {
		t.Fatalf("names = %v", got)
	}
}
