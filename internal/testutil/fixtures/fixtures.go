// Package fixtures holds model documents shared by the analyzer tests.
package fixtures

import (
	"testing"

	"github.com/kukula/lattice/internal/graph"
	"github.com/kukula/lattice/internal/ir"
	"github.com/kukula/lattice/internal/schema"
)

// OrderLifecycle is an order entity with nine states, all entered by at
// least one transition.
const OrderLifecycle = `
entities:
  Customer:
    attributes:
      - name: email
        type: string
        unique: true
    relationships:
      - has_many: Order
  Order:
    belongs_to: Customer
    attributes:
      - name: total
        type: decimal
        min: 0
      - name: paid_at
        type: datetime
        optional: true
    states:
      - name: draft
        initial: true
      - submitted
      - paid
      - processing
      - shipped
      - name: delivered
        terminal: true
      - returned
      - name: refunded
        terminal: true
      - name: cancelled
        terminal: true
    transitions:
      - from: draft
        to: submitted
        trigger: submit
        requires: [total > 0]
      - from: [draft, submitted]
        to: cancelled
        trigger: cancel
      - from: submitted
        to: paid
        trigger: pay
        effects: [send_receipt]
      - from: paid
        to: processing
        trigger: process
      - from: processing
        to: shipped
        trigger: ship
      - from: shipped
        to: delivered
        trigger: deliver
      - from: delivered
        to: returned
        trigger: return
      - from: returned
        to: refunded
        trigger: refund
      - from: submitted
        to: draft
        trigger: revise
    invariants:
      - description: total is never negative
        formal: total >= 0
      - description: paid orders have a payment time
        formal: status != 'paid' or paid_at != null
`

// TaskUnreachable has one state that no transition enters.
const TaskUnreachable = `
entities:
  Task:
    states:
      - name: pending
        initial: true
      - in_progress
      - name: completed
        terminal: true
      - secret
    transitions:
      - from: pending
        to: in_progress
      - from: in_progress
        to: completed
      - from: secret
        to: completed
`

// RoleOrphan has a Role entity no other entity relates to.
const RoleOrphan = `
entities:
  User:
    attributes: [email]
    relationships:
      - has_many: Permission
  Permission:
    belongs_to: User
    attributes: [name]
  RoleAssignment:
    belongs_to: User
  Role:
    attributes: [name]
`

// Model parses and builds src, failing the test on any error.
func Model(t testing.TB, src string) *ir.Model {
	t.Helper()
	doc, err := schema.Parse([]byte(src))
	if err != nil {
		t.Fatalf("schema.Parse: %v", err)
	}
	m, err := graph.Build(doc)
	if err != nil {
		t.Fatalf("graph.Build: %v", err)
	}
	return m
}
