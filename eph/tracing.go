package eph

import (
	"context"

	"github.com/devigned/tab"
)

const (
	componentName = "github.com/Azure/azure-event-hubs-processor-go"
)

func startSpan(ctx context.Context, operationName, partitionID string) (context.Context, tab.Spanner) {
	ctx, span := tab.StartSpan(ctx, operationName)
	applyComponentInfo(span)
	span.AddAttributes(tab.StringAttribute("eph.partition_id", partitionID))
	return ctx, span
}

func applyComponentInfo(span tab.Spanner) {
	span.AddAttributes(
		tab.StringAttribute("component", componentName),
		tab.StringAttribute("version", Version),
	)
}
