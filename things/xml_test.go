package things

import (
	"strings"
	"testing"
)

func TestReadItemTypesXML(t *testing.T) {
	doc := `<items>
		<item serverid="100" clientid="200" ground="1"/>
		<item serverid="102" clientid="202" stackable="true"/>
		<item serverid="104" clientid="204" fluidcontainer="1" splash="0"/>
	</items>`
	types, err := ReadItemTypesXML(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("failed to read item types xml: %v", err)
	}
	if got, want := len(types), 3; got != want {
		t.Fatalf("got %d types; want %d", got, want)
	}
	if !types[0].Ground || types[0].ServerID != 100 || types[0].ClientID != 200 {
		t.Errorf("got %+v; want ground 100/200", types[0])
	}
	if !types[1].Stackable || !types[1].Subtyped() {
		t.Errorf("got %+v; want stackable and subtyped", types[1])
	}
	if !types[2].FluidContainer || types[2].Splash {
		t.Errorf("got %+v; want fluid container, not splash", types[2])
	}

	th := New(types)
	if sid, ok := th.IDMap().ServerIDForClientID(202); !ok || sid != 102 {
		t.Errorf("got %d, %t; want 102, true", sid, ok)
	}
}

func TestReadItemTypesXMLBadDocument(t *testing.T) {
	if _, err := ReadItemTypesXML(strings.NewReader("<items><item")); err == nil {
		t.Errorf("got nil error for malformed xml; want error")
	}
}
