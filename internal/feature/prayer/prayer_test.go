package prayer

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"

	"tg_assistant_bot/internal/dispatch"
)

type fakeTimesClient struct {
	times Times
	err   error
	city  string
}

func (f *fakeTimesClient) Times(ctx context.Context, city string) (Times, error) {
	f.city = city
	return f.times, f.err
}

type fakeTextSender struct {
	texts []string
}

func (f *fakeTextSender) SendText(ctx context.Context, chatID int64, text string) error {
	f.texts = append(f.texts, text)
	return nil
}

func newPrayerCommand(t *testing.T, client TimesClient, sender *fakeTextSender) *Command {
	t.Helper()
	logger, _ := logtest.NewNullLogger()
	cmd, err := NewCommand(client, "Istanbul", sender, logrus.NewEntry(logger))
	if err != nil {
		t.Fatalf("NewCommand returned error: %v", err)
	}
	return cmd
}

func TestCommandUsesDefaultCity(t *testing.T) {
	client := &fakeTimesClient{times: Times{Fajr: "05:12", Dhuhr: "13:04", Asr: "16:41", Maghrib: "19:55", Isha: "21:20"}}
	sender := &fakeTextSender{}
	cmd := newPrayerCommand(t, client, sender)

	if err := cmd.Execute(context.Background(), dispatch.Request{UserID: 42, ChatID: 900}); err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}

	if client.city != "Istanbul" {
		t.Fatalf("expected default city lookup, got %q", client.city)
	}
	if len(sender.texts) != 1 || !strings.Contains(sender.texts[0], "Fajr: 05:12") {
		t.Fatalf("unexpected reply: %v", sender.texts)
	}
}

func TestCommandJoinsCityArguments(t *testing.T) {
	client := &fakeTimesClient{times: Times{Fajr: "05:00"}}
	sender := &fakeTextSender{}
	cmd := newPrayerCommand(t, client, sender)

	req := dispatch.Request{UserID: 42, ChatID: 900, Args: []string{"New", "York"}}
	if err := cmd.Execute(context.Background(), req); err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if client.city != "New York" {
		t.Fatalf("expected multi-word city, got %q", client.city)
	}
}

func TestCommandDegradesOnLookupFailure(t *testing.T) {
	client := &fakeTimesClient{err: errors.New("api down")}
	sender := &fakeTextSender{}
	cmd := newPrayerCommand(t, client, sender)

	if err := cmd.Execute(context.Background(), dispatch.Request{UserID: 42, ChatID: 900}); err != nil {
		t.Fatalf("lookup failure should degrade to a notice, got error: %v", err)
	}
	if len(sender.texts) != 1 || !strings.Contains(sender.texts[0], "Couldn't load prayer times") {
		t.Fatalf("expected failure notice, got %v", sender.texts)
	}
}

func TestHTTPClientParsesTimings(t *testing.T) {
	var gotCity string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotCity = r.URL.Query().Get("city")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"timings":{"Fajr":"05:12","Dhuhr":"13:04","Asr":"16:41","Maghrib":"19:55","Isha":"21:20"}}}`))
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, server.Client())

	times, err := client.Times(context.Background(), "Istanbul")
	if err != nil {
		t.Fatalf("Times returned error: %v", err)
	}
	if gotCity != "Istanbul" {
		t.Fatalf("expected city param, got %q", gotCity)
	}
	if times.Fajr != "05:12" || times.Isha != "21:20" {
		t.Fatalf("unexpected times: %+v", times)
	}
}

func TestHTTPClientRejectsBadResponses(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			},
		},
		{
			name: "empty timings",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"data":{"timings":{}}}`))
			},
		},
		{
			name: "not json",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte("nope"))
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(tc.handler)
			defer server.Close()

			client := NewHTTPClient(server.URL, server.Client())
			if _, err := client.Times(context.Background(), "Istanbul"); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestHTTPClientRequiresCity(t *testing.T) {
	client := NewHTTPClient("", nil)
	if _, err := client.Times(context.Background(), "  "); err == nil {
		t.Fatalf("expected error for blank city")
	}
}
