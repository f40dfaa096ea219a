package billing

// relevantKinds é a allow-list de eventos que alteram estado de assinatura.
// invoice.paid e invoice.payment_succeeded chegam juntos para o mesmo pagamento; ambos
// caem no mesmo handler e o segundo vira no-op pela mesclagem idempotente.
var relevantKinds = map[EventKind]EventKind{
	KindCheckoutCompleted:    KindCheckoutCompleted,
	KindSubscriptionUpdated:  KindSubscriptionUpdated,
	KindSubscriptionDeleted:  KindSubscriptionDeleted,
	KindInvoicePaid:          KindInvoicePaid,
	KindInvoicePaidAlias:     KindInvoicePaid,
	KindInvoicePaymentFailed: KindInvoicePaymentFailed,
}

// Classify devolve o tipo canônico do evento e se ele é relevante.
// Eventos irrelevantes devem ser confirmados ao Stripe sem efeito colateral.
func Classify(ev Event) (EventKind, bool) {
	kind, ok := relevantKinds[ev.Kind]
	return kind, ok
}
