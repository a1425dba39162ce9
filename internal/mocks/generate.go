// Package mocks provides gomock doubles for the core ports.
//
// To regenerate after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	store := mocks.NewMockStore(ctrl)
//	store.EXPECT().Now(gomock.Any()).Return(time.Time{}, context.DeadlineExceeded)
package mocks

//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=store_mock.go github.com/Cypherspark/devops-app/internal/core Store
