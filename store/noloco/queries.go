package noloco

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// =============================================================================
// QUERY TEXT
// =============================================================================

const timesheetFields = `
				id
				employeePin
				timesheetDate
				approved
				shiftHoursWorked
				clockDatetime
				clockOutDatetime
				payrollRecord {
					id
				}`

const payrollFields = `
				id
				employeeIdVal
				payPeriodStart
				payPeriodEnd
				payRate
				paymentMethod
				status
				relatedTimesheets {
					edges {
						node {
							id
						}
					}
				}`

const employeeFields = `
				employeeIdVal
				payRate`

// collectionQuery renders a paginated read of collection.
func collectionQuery(collection, fields string, first int, after, where string) string {
	args := []string{"first: " + strconv.Itoa(first)}
	if after != "" {
		args = append(args, "after: "+quote(after))
	}
	if where != "" {
		args = append(args, "where: "+where)
	}
	return fmt.Sprintf(`query {
	%s(%s) {
		edges {
			node {%s
			}
		}
		pageInfo {
			hasNextPage
			endCursor
		}
	}
}`, collection, strings.Join(args, ", "), fields)
}

func createPayrollMutation(pin, start, end, rate, method, status string, timesheetIDs []string) string {
	return fmt.Sprintf(`mutation {
	createPayroll(
		employeeIdVal: %s
		payPeriodStart: %s
		payPeriodEnd: %s
		payRate: %s
		paymentMethod: %s
		status: %s
		relatedTimesheetsId: %s
	) {
		id
	}
}`, quote(pin), quote(start), quote(end), rate, enum(method), enum(status), idList(timesheetIDs))
}

func updatePayrollMutation(id string, timesheetIDs []string) string {
	return fmt.Sprintf(`mutation {
	updatePayroll(
		id: %s
		relatedTimesheetsId: %s
	) {
		id
	}
}`, quote(id), idList(timesheetIDs))
}

func unlinkTimesheetMutation(id string) string {
	return fmt.Sprintf(`mutation {
	updateTimesheets(id: %s, payrollRecordId: null) {
		id
	}
}`, quote(id))
}

// idEquals filters a collection to one id. Numeric ids are sent bare.
func idEquals(id string) string {
	lit := quote(id)
	if _, err := strconv.ParseInt(id, 10, 64); err == nil {
		lit = id
	}
	return "{id: {equals: " + lit + "}}"
}

// quote renders s as a GraphQL string literal. GraphQL strings share JSON's
// escape rules.
func quote(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func idList(ids []string) string {
	quoted := make([]string, len(ids))
	for i, id := range ids {
		quoted[i] = quote(id)
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}

// enum keeps only identifier characters so a config value cannot break out
// of the enum position.
func enum(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r == '_' || (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}
