// Package model defines data structures shared by the chat client and the reference backend.
package model

import (
	"strings"
	"time"
)

// ClientStatus is the lifecycle status of a client organization.
// The set of values is open-ended; unknown statuses are displayed as-is.
type ClientStatus string

const (
	StatusActive         ClientStatus = "active"
	StatusAtRisk         ClientStatus = "at risk"
	StatusPendingRenewal ClientStatus = "pending renewal"
	StatusOnHold         ClientStatus = "on hold"
	StatusChurned        ClientStatus = "churned"
	StatusProspect       ClientStatus = "prospect"
)

// Tag returns the display tag colour for a status.
func (s ClientStatus) Tag() string {
	switch ClientStatus(strings.ToLower(string(s))) {
	case StatusActive:
		return "green"
	case StatusAtRisk:
		return "red"
	case StatusPendingRenewal:
		return "blue"
	case StatusOnHold:
		return "yellow"
	default:
		return "white"
	}
}

// Client is an organization that conversations are scoped to.
type Client struct {
	ID     string       `json:"id" yaml:"id"`
	Name   string       `json:"name" yaml:"name"`
	Status ClientStatus `json:"status" yaml:"status"`
}

// Conversation represents a conversation thread.
type Conversation struct {
	ID        string    `json:"id"`
	ClientID  string    `json:"client_id"`
	UserID    string    `json:"user_id,omitempty"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	Deleted   bool      `json:"-"`
}

// EnrichedConversation is a conversation joined with its client for display.
type EnrichedConversation struct {
	Conversation
	ClientName   string       `json:"client_name"`
	ClientStatus ClientStatus `json:"client_status"`
}

// CreateConversationRequest is the request to create a new conversation.
type CreateConversationRequest struct {
	ClientID string `json:"client_id"`
	UserID   string `json:"user_id"`
}

// CreateConversationResponse wraps a newly created conversation.
type CreateConversationResponse struct {
	Conversation Conversation `json:"conversation"`
}

// RenameConversationRequest is the request to change a conversation title.
type RenameConversationRequest struct {
	Title string `json:"title"`
}

// ListConversationsResponse is the response for listing conversations.
type ListConversationsResponse struct {
	Conversations []Conversation `json:"conversations"`
}

// Ack is the acknowledgement body returned by mutating endpoints.
type Ack struct {
	Status string `json:"status"`
}
