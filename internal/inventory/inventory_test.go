package inventory

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"powersched/internal/types"
)

const sampleCSV = `hostname,machine_name,application,environment,server_type,instance_type,description
bill-web-p1,billing-web-1,Billing,prod,web,m5.large,front pool
bill-web-d1,billing-web-1,Billing,dev,web,t3.small,
bill-db-p1,billing-db-1,Billing,prod,db,r5.xlarge,
crm-app-q1,crm-app-1,CRM,qa,app,t3.medium,
`

func TestParseCSV(t *testing.T) {
	inv, err := ParseCSV(strings.NewReader(sampleCSV))
	require.NoError(t, err)

	assert.Equal(t, 4, inv.Len())
	assert.Equal(t, []string{"Billing", "CRM"}, inv.Applications())

	m, ok := inv.Machine("bill-web-p1")
	require.True(t, ok)
	assert.Equal(t, "m5.large", m.InstanceType)
	assert.Equal(t, "front pool", m.Description)
}

func TestParseCSV_HeaderOrderIsFree(t *testing.T) {
	csv := "application,hostname,server_type,environment,machine_name\nBilling,h1,web,prod,b-1\n"
	inv, err := ParseCSV(strings.NewReader(csv))
	require.NoError(t, err)

	m, ok := inv.Machine("h1")
	require.True(t, ok)
	assert.Equal(t, "Billing", m.Application)
	assert.Equal(t, "prod", m.Environment)
}

func TestParseCSV_MissingRequiredColumn(t *testing.T) {
	csv := "hostname,application,environment\nh1,Billing,prod\n"
	_, err := ParseCSV(strings.NewReader(csv))

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeValidationBadInventory, appErr.Code)
}

func TestParseCSV_EmptyHostnameRejected(t *testing.T) {
	csv := sampleCSV + ",nameless,Billing,prod,web,,\n"
	_, err := ParseCSV(strings.NewReader(csv))

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeValidationBadInventory, appErr.Code)
}

func TestEnvironments_PromotionOrder(t *testing.T) {
	machines := []types.Machine{
		{Hostname: "h1", Application: "A", Environment: "prod"},
		{Hostname: "h2", Application: "A", Environment: "dev"},
		{Hostname: "h3", Application: "A", Environment: "qa"},
		{Hostname: "h4", Application: "A", Environment: "sandbox"},
	}
	inv := New(machines)

	assert.Equal(t, []string{"dev", "qa", "prod", "sandbox"}, inv.Environments("A"))
}

func TestMachinesAndHostnames_SortedPerScope(t *testing.T) {
	inv, err := ParseCSV(strings.NewReader(sampleCSV))
	require.NoError(t, err)

	assert.Equal(t, []string{"bill-db-p1", "bill-web-p1"}, inv.Hostnames("Billing", "prod"))
	assert.Empty(t, inv.Machines("Billing", "qa"))
}

func TestScopes(t *testing.T) {
	inv, err := ParseCSV(strings.NewReader(sampleCSV))
	require.NoError(t, err)

	assert.Equal(t, []types.ScopeKey{
		{App: "Billing", Env: "dev"},
		{App: "Billing", Env: "prod"},
		{App: "CRM", Env: "qa"},
	}, inv.Scopes())
}
