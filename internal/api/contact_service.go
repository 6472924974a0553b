package api

import (
	"context"

	"github.com/matheus3301/wlite/internal/contact"
	"google.golang.org/protobuf/types/known/emptypb"
)

// ContactService exposes the address book.
type ContactService struct {
	contacts *contact.Service
}

// NewContactService creates a new contact service.
func NewContactService(contacts *contact.Service) *ContactService {
	return &ContactService{contacts: contacts}
}

func (s *ContactService) AddContact(ctx context.Context, req *AddContactRequest) (*ContactResponse, error) {
	c, err := s.contacts.Add(ctx, req.Name, req.Phone)
	if err != nil {
		return nil, toStatus("add contact", err)
	}
	return &ContactResponse{Contact: *c}, nil
}

func (s *ContactService) ListContacts(ctx context.Context, _ *emptypb.Empty) (*ContactList, error) {
	list, err := s.contacts.List(ctx)
	if err != nil {
		return nil, toStatus("list contacts", err)
	}
	return &ContactList{Contacts: list}, nil
}

func (s *ContactService) SearchContacts(ctx context.Context, req *SearchRequest) (*ContactList, error) {
	list, err := s.contacts.Search(ctx, req.Query)
	if err != nil {
		return nil, toStatus("search contacts", err)
	}
	return &ContactList{Contacts: list}, nil
}
