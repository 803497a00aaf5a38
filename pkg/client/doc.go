// Package client is the Go SDK for the crop ledger REST API.
//
// A read-only client needs nothing but the server address:
//
//	c, err := client.New("http://localhost:8080")
//	report, err := c.VerifyAudit(ctx)
//	fmt.Println(report.Valid, report.TotalEntries)
//
// When the server runs with actor tokens enabled, mutating calls must carry
// a token whose subject matches the farmer, seller, buyer or account id in
// the request:
//
//	c, _ := client.New(addr, client.WithActorToken(tok))
//	res, err := c.RegisterCrop(ctx, client.RegisterCropRequest{
//	    CropType:     "wheat",
//	    Quantity:     decimal.NewFromInt(100),
//	    QualityGrade: "A",
//	    MandiID:      "M1",
//	    FarmerID:     "F1",
//	})
//
// Crops never change after registration, so GetCrop results can be cached
// with WithCacheTTL.
//
// Rejections come back as *APIError carrying the server's error kind:
//
//	_, err := c.ListToken(ctx, tokenID, "F1")
//	if client.IsKind(err, client.KindInvalidState) {
//	    // already listed or sold
//	}
package client
