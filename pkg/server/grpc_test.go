package server

import (
	"context"
	"testing"

	"wavesight-core/pkg/errutil"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestErrorInterceptor(t *testing.T) {
	info := &grpc.UnaryServerInfo{FullMethod: "/wavesight.Test/Call"}

	resp, err := errorInterceptor(context.Background(), nil, info, func(ctx context.Context, req any) (any, error) {
		return "ok", nil
	})
	require.NoError(t, err)
	require.Equal(t, "ok", resp)

	_, err = errorInterceptor(context.Background(), nil, info, func(ctx context.Context, req any) (any, error) {
		return nil, errutil.Conflict("already voted on this trend", nil)
	})
	st, ok := status.FromError(err)
	require.True(t, ok)
	require.Equal(t, codes.AlreadyExists, st.Code())
}
