package mocks

import "github.com/stretchr/testify/mock"

type NotifierMock struct {
	mock.Mock
}

func (m *NotifierMock) Notify() {
	m.Called()
}
