package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestBuildWhatsAppRequest(t *testing.T) {
	text := buildWhatsAppRequest("15550100", &Message{Body: "hello"})
	if text.MessagingProduct != "whatsapp" || text.Type != "text" || text.Text == nil || text.Text.Body != "hello" {
		t.Errorf("text request = %+v", text)
	}
	if text.Template != nil {
		t.Error("text request must not carry a template")
	}

	tmpl := buildWhatsAppRequest("15550100", &Message{Template: "order_update", TemplateParams: []string{"Ana", "#42"}})
	if tmpl.Type != "template" || tmpl.Text != nil || tmpl.Template == nil {
		t.Fatalf("template request = %+v", tmpl)
	}
	if tmpl.Template.Name != "order_update" || tmpl.Template.Language.Code != "en" {
		t.Errorf("template = %+v", tmpl.Template)
	}
	if len(tmpl.Template.Components) != 1 || tmpl.Template.Components[0].Type != "body" {
		t.Fatalf("components = %+v", tmpl.Template.Components)
	}
	params := tmpl.Template.Components[0].Parameters
	if len(params) != 2 || params[0].Text != "Ana" || params[1].Text != "#42" || params[0].Type != "text" {
		t.Errorf("parameters = %+v", params)
	}

	bare := buildWhatsAppRequest("15550100", &Message{Template: "hello_world"})
	if len(bare.Template.Components) != 0 {
		t.Errorf("template without params must have no components")
	}
}

func TestWhatsAppBusinessSend(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer wa-token" {
			t.Errorf("Authorization = %q", got)
		}
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		if body["messaging_product"] != "whatsapp" || body["to"] != "15550100" || body["type"] != "text" {
			t.Errorf("body = %v", body)
		}
		text, _ := body["text"].(map[string]any)
		if text["body"] != "Hi Ana" {
			t.Errorf("text = %v", text)
		}
		w.Write([]byte(`{"messaging_product":"whatsapp","messages":[{"id":"wamid.ABC"}]}`))
	}))
	defer srv.Close()

	res := NewWhatsAppBusiness(srv.URL, "wa-token", time.Second).Send(context.Background(), &Message{To: "+1 555-0100", Body: "Hi Ana"})
	if !res.Success {
		t.Fatalf("Send failed: %s", res.Error)
	}
	if res.MessageID != "wamid.ABC" || res.Provider != "business" {
		t.Errorf("Result = %+v", res)
	}
}

func TestWhatsAppBusinessError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"message":"Invalid OAuth access token","code":190}}`))
	}))
	defer srv.Close()

	res := NewWhatsAppBusiness(srv.URL, "bad", time.Second).Send(context.Background(), &Message{To: "15550100", Body: "x"})
	if res.Success {
		t.Fatal("expected failure")
	}
	if res.Error != "HTTP 401: Invalid OAuth access token" {
		t.Errorf("Error = %q", res.Error)
	}
}
