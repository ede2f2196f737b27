package mcpserver

// ModelFormatContract describes the model file format that LLM consumers
// should follow when writing or reviewing Lattice models.
const ModelFormatContract = `# Lattice Model Format Contract

A model file is YAML (` + "`" + `.yaml` + "`" + `, ` + "`" + `.yml` + "`" + `) or Markdown (` + "`" + `.md` + "`" + `) whose YAML
frontmatter holds the model. Several files may describe fragments of the same
entity; fragments are merged by entity name.

## Structure

` + "```" + `yaml
entities:
  Order:
    belongs_to: Customer          # shorthand; also has_many, has_one, depends_on
    attributes:
      - name: total
        type: decimal             # primitive, ref<Entity>, Entity, list<T>, enum[a, b]
        min: 0
      - name: paid_at
        type: datetime
        optional: true
    states:
      - name: draft
        initial: true             # exactly one initial state per stateful entity
      - submitted
      - name: delivered
        terminal: true
    transitions:
      - from: [draft]             # one state or a list
        to: submitted
        trigger: submit
        requires: [total > 0]     # guard expressions
        effects: [send_receipt]
    computed:
      - name: item_count
        formula: count(items)
    invariants:
      - description: total is never negative
        formal: total >= 0
    unclear:
      - who approves refunds?
system_invariants:
  - description: every order has a customer
    formal: orders.all(o => o.customer != null)
roles: [admin, clerk]
permissions: [refund]
rules:
  - role: admin
    permissions: [refund]
` + "```" + `

## Rules

1. **Entity names** are capitalized (` + "`" + `Order` + "`" + `, ` + "`" + `LineItem` + "`" + `). A capitalized bare type is a
   reference to another entity.
2. **Every reference must resolve.** Relationship targets, ref attributes and
   transition states must name something that is defined.
3. **Stateful entities** need exactly one ` + "`" + `initial` + "`" + ` state. Every state should be
   reachable from it and every non-terminal state should have a way out.
4. **Entities relate to each other.** An entity nothing refers to is reported as an
   orphan unless it is marked ` + "`" + `standalone: true` + "`" + `.
5. **Open questions** go under ` + "`" + `unclear` + "`" + `. They never fail validation but are
   surfaced for review.
6. **Encoding** is UTF-8. Paths use forward slashes.

## Diagnostics

Validation reports errors (fail the run), warnings and unclear items. Codes
include UNREACHABLE_STATE, DEAD_END_STATE, NO_INITIAL_STATE, MULTIPLE_INITIAL_STATES,
REFERENCE_INTEGRITY, DUPLICATE_DEFINITION, ORPHAN_ENTITY, DEPENDENCY_CYCLE,
TRANSITION_GAP and UNCLEAR. Call ` + "`" + `validate_model` + "`" + ` after every edit.
`
