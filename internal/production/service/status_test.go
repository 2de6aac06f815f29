package service

import (
	"testing"

	"github.com/scanflow/scanflow-backend/internal/production/repository"
	"github.com/stretchr/testify/assert"
)

func TestValidOrderTransition(t *testing.T) {
	assert.True(t, ValidOrderTransition(repository.OrderStatusInProgress, repository.OrderStatusComplete))
	assert.True(t, ValidOrderTransition(repository.OrderStatusInProgress, repository.OrderStatusCancelled))

	// TERMINE and ANNULE are terminal
	assert.False(t, ValidOrderTransition(repository.OrderStatusComplete, repository.OrderStatusInProgress))
	assert.False(t, ValidOrderTransition(repository.OrderStatusComplete, repository.OrderStatusCancelled))
	assert.False(t, ValidOrderTransition(repository.OrderStatusCancelled, repository.OrderStatusInProgress))
}

func TestValidUnitTransition(t *testing.T) {
	assert.True(t, ValidUnitTransition(repository.UnitStatusToScan, repository.UnitStatusScanned))
	assert.True(t, ValidUnitTransition(repository.UnitStatusToScan, repository.UnitStatusValidated))
	assert.True(t, ValidUnitTransition(repository.UnitStatusToScan, repository.UnitStatusRejected))
	assert.True(t, ValidUnitTransition(repository.UnitStatusScanned, repository.UnitStatusValidated))
	assert.True(t, ValidUnitTransition(repository.UnitStatusScanned, repository.UnitStatusRejected))

	// VALIDE and REJETE are terminal, the forced re-scan override goes
	// through the engine
	assert.False(t, ValidUnitTransition(repository.UnitStatusValidated, repository.UnitStatusRejected))
	assert.False(t, ValidUnitTransition(repository.UnitStatusRejected, repository.UnitStatusToScan))
	assert.False(t, ValidUnitTransition(repository.UnitStatusValidated, repository.UnitStatusToScan))
}
